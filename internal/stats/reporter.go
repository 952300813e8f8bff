package stats

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reporter periodically logs a stats snapshot
type Reporter struct {
	sink     *Sink
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewReporter creates a new reporter. A non-positive interval defaults to five minutes.
func NewReporter(sink *Sink, interval time.Duration, logger *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reporter{
		sink:     sink,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background reporting loop
func (r *Reporter) Start() {
	go r.reportLoop()
	r.logger.Info("Stats reporter started", zap.Duration("interval", r.interval))
}

// Stop gracefully stops the reporter
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		r.logger.Info("Stats reporter stopped")
	})
}

func (r *Reporter) reportLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	snap := r.sink.Snapshot()
	fields := []zap.Field{
		zap.String("mode", snap.Mode),
		zap.Int64("uptimeSeconds", snap.UptimeSeconds),
	}
	for name, value := range snap.Counters {
		fields = append(fields, zap.Int64(name, value))
	}
	r.logger.Info("Stats snapshot", fields...)
}
