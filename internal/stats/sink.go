package stats

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/repositories"
	"github.com/falabot/server/internal/pipeline"
)

const logRingSize = 100

// LogEntry is one operational log line kept for the stats endpoint
type LogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the JSON view of the operational counters
type Snapshot struct {
	Mode          string           `json:"mode"`
	StartedAt     time.Time        `json:"started_at"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Counters      map[string]int64 `json:"counters"`
	RecentLogs    []LogEntry       `json:"recent_logs"`
}

// Sink implements repositories.OperationsSink on top of prometheus collectors
// and keeps an in-process copy for snapshots
type Sink struct {
	mode      string
	startedAt time.Time
	logger    *zap.Logger

	events        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	runDuration   *prometheus.HistogramVec

	mu       sync.Mutex
	counters map[repositories.Counter]int64
	logs     []LogEntry
	next     int
}

var _ repositories.OperationsSink = (*Sink)(nil)

// NewSink registers the collectors on reg, or the default registerer when nil
func NewSink(reg prometheus.Registerer, mode string, logger *zap.Logger) *Sink {
	s := &Sink{
		mode:      mode,
		startedAt: time.Now(),
		logger:    logger,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "falabot",
			Subsystem: "dispatcher",
			Name:      "events_total",
			Help:      "Dispatcher counters by name",
		}, []string{"counter"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "falabot",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages by outcome",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "falabot",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of whole pipeline runs by outcome",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"state"}),
		counters: make(map[repositories.Counter]int64),
		logs:     make([]LogEntry, 0, logRingSize),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(s.events, s.stageDuration, s.runDuration)
	return s
}

// Increment implements repositories.OperationsSink
func (s *Sink) Increment(counter repositories.Counter) {
	if s == nil {
		return
	}
	s.events.WithLabelValues(string(counter)).Inc()

	s.mu.Lock()
	s.counters[counter]++
	s.mu.Unlock()
}

// Log implements repositories.OperationsSink. The line is only kept in a ring
// of the last entries; callers log to zap themselves.
func (s *Sink) Log(level, message string) {
	if s == nil {
		return
	}
	level = strings.ToLower(level)
	entry := LogEntry{Level: level, Message: message, Timestamp: time.Now()}

	s.mu.Lock()
	if len(s.logs) < logRingSize {
		s.logs = append(s.logs, entry)
	} else {
		s.logs[s.next] = entry
	}
	s.next = (s.next + 1) % logRingSize
	s.mu.Unlock()
}

// Snapshot returns counters and recent log lines, oldest first
func (s *Sink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := map[string]int64{
		string(repositories.CounterMessagesReceived):  0,
		string(repositories.CounterMessagesProcessed): 0,
		string(repositories.CounterAudiosCorrected):   0,
		string(repositories.CounterErrors):            0,
	}
	for k, v := range s.counters {
		counters[string(k)] = v
	}

	logs := make([]LogEntry, 0, len(s.logs))
	if len(s.logs) == logRingSize {
		logs = append(logs, s.logs[s.next:]...)
		logs = append(logs, s.logs[:s.next]...)
	} else {
		logs = append(logs, s.logs...)
	}

	return Snapshot{
		Mode:          s.mode,
		StartedAt:     s.startedAt,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Counters:      counters,
		RecentLogs:    logs,
	}
}

// Count returns the current value of a counter
func (s *Sink) Count(counter repositories.Counter) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counter]
}

// ObserveEvent records stage and run durations from pipeline events
func (s *Sink) ObserveEvent(event pipeline.Event) {
	switch event.Type {
	case pipeline.EventStageCompleted, pipeline.EventStageDegraded, pipeline.EventStageSkipped, pipeline.EventStageFailed:
		state := strings.TrimPrefix(event.Type, "stage_")
		s.stageDuration.WithLabelValues(string(event.StageID), state).Observe(event.Duration.Seconds())
	case pipeline.EventRunCompleted:
		s.runDuration.WithLabelValues("completed").Observe(event.Duration.Seconds())
	case pipeline.EventRunFailed:
		s.runDuration.WithLabelValues("failed").Observe(event.Duration.Seconds())
	}
}

// ConsumeEvents observes pipeline events until ctx is done or events is closed
func (s *Sink) ConsumeEvents(ctx context.Context, events <-chan pipeline.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				s.logger.Debug("Pipeline event channel closed")
				return
			}
			s.ObserveEvent(event)
		}
	}
}
