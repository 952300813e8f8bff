// Package dispatcher turns inbound chat events into pipeline runs and replies.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"syscall"
	"time"

	smithyhttp "github.com/aws/smithy-go/transport/http"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
	"github.com/falabot/server/internal/inflight"
)

const (
	defaultProbeTimeout    = 5 * time.Second
	defaultConvertTimeout  = 30 * time.Second
	defaultDurationSeconds = 10
	maxSaneDuration        = 7200
)

// Orchestrator runs the audio pipeline for one message
type Orchestrator interface {
	Process(ctx context.Context, audio []byte, senderID string) (*entities.PipelineResult, error)
}

// Persistence keeps users and audio records. StoreAudio and UpdateTranscription never fail the request.
type Persistence interface {
	GetOrCreateUser(ctx context.Context, userID, displayName string) (*entities.User, error)
	StoreAudio(ctx context.Context, userID string, audio []byte, durationSeconds int) *entities.AudioRecord
	UpdateTranscription(ctx context.Context, record *entities.AudioRecord, transcription, correctedText string)
}

// ContextClearer drops the conversation history of a sender
type ContextClearer interface {
	Clear(senderID string)
}

// Options tunes the dispatcher
type Options struct {
	MaxAudioDurationSeconds int
	EnableAudioReply        bool
	ProbeTimeout            time.Duration
	ConvertTimeout          time.Duration
	DefaultDurationSeconds  int
}

// Dispatcher handles inbound chat events
type Dispatcher struct {
	inflight     inflight.Set
	orchestrator Orchestrator
	persistence  Persistence
	contexts     ContextClearer
	converter    repositories.AudioConverter
	sender       repositories.MessageSender
	ops          repositories.OperationsSink
	opts         Options
	logger       *zap.Logger
}

// Deps groups the collaborators of a Dispatcher
type Deps struct {
	Inflight     inflight.Set
	Orchestrator Orchestrator
	Persistence  Persistence
	Contexts     ContextClearer
	Converter    repositories.AudioConverter
	Sender       repositories.MessageSender
	Ops          repositories.OperationsSink
}

func New(deps Deps, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.ConvertTimeout <= 0 {
		opts.ConvertTimeout = defaultConvertTimeout
	}
	if opts.DefaultDurationSeconds <= 0 {
		opts.DefaultDurationSeconds = defaultDurationSeconds
	}
	if opts.MaxAudioDurationSeconds <= 0 {
		opts.MaxAudioDurationSeconds = 120
	}
	if deps.Inflight == nil {
		deps.Inflight = inflight.NewMemorySet()
	}

	return &Dispatcher{
		inflight:     deps.Inflight,
		orchestrator: deps.Orchestrator,
		persistence:  deps.Persistence,
		contexts:     deps.Contexts,
		converter:    deps.Converter,
		sender:       deps.Sender,
		ops:          deps.Ops,
		opts:         opts,
		logger:       logger,
	}
}

// Handle processes one inbound event. Redelivered events whose id is still
// in flight are dropped. It is safe to call from many goroutines.
func (d *Dispatcher) Handle(ctx context.Context, event entities.InboundEvent) {
	if ignored(event) {
		d.logger.Debug("Ignoring event",
			zap.String("messageID", event.MessageID),
			zap.String("senderID", event.SenderID),
			zap.String("kind", string(event.Kind)))
		return
	}

	if !d.inflight.TryAdd(ctx, event.MessageID) {
		d.logger.Debug("Message already being processed, ignoring duplicate", zap.String("messageID", event.MessageID))
		return
	}
	defer d.inflight.Remove(context.WithoutCancel(ctx), event.MessageID)

	d.increment(repositories.CounterMessagesReceived)
	d.logger.Info("New message received",
		zap.String("messageID", event.MessageID),
		zap.String("senderID", event.SenderID),
		zap.String("kind", string(event.Kind)))
	d.log("info", fmt.Sprintf("New message - kind: %s", event.Kind))

	if _, err := d.persistence.GetOrCreateUser(ctx, event.SenderID, event.SenderName); err != nil {
		d.logger.Error("Failed to create user", zap.String("senderID", event.SenderID), zap.Error(err))
	}

	switch event.Kind {
	case entities.EventKindText:
		d.handleText(ctx, event)
	case entities.EventKindAudio:
		d.handleAudio(ctx, event)
	default:
		d.logger.Info("Unsupported message kind", zap.String("kind", string(event.Kind)))
		d.reply(ctx, event.SenderID, MessageNotAudio)
	}
}

func ignored(event entities.InboundEvent) bool {
	if event.MessageID == "" || event.SenderID == "" || event.FromGroup() {
		return true
	}
	switch event.Kind {
	case entities.EventKindSystem:
		return true
	case entities.EventKindAudio:
		return len(event.Payload) == 0
	}
	return false
}

func (d *Dispatcher) handleText(ctx context.Context, event entities.InboundEvent) {
	switch parseCommand(event.Text) {
	case commandPing:
		d.reply(ctx, event.SenderID, MessagePong)
	case commandTestAudio:
		d.logger.Info("Audio test command received while audio replies are disabled")
		d.reply(ctx, event.SenderID, MessageAudioDisabled)
	case commandClear:
		d.logger.Info("Clearing conversation context", zap.String("senderID", event.SenderID))
		if d.contexts != nil {
			d.contexts.Clear(event.SenderID)
		}
		d.reply(ctx, event.SenderID, MessageContextCleared)
	default:
		d.reply(ctx, event.SenderID, MessageWelcome)
	}
}

// reply sends a final text and counts the message as processed
func (d *Dispatcher) reply(ctx context.Context, to, text string) {
	if d.sendText(ctx, to, text) {
		d.increment(repositories.CounterMessagesProcessed)
	}
}

func (d *Dispatcher) handleAudio(ctx context.Context, event entities.InboundEvent) {
	log := d.logger.With(zap.String("messageID", event.MessageID), zap.String("senderID", event.SenderID))
	log.Info("Processing audio message", zap.Int("bytes", len(event.Payload)))
	d.log("info", "Processing received audio")

	d.sendText(ctx, event.SenderID, MessageProcessing)

	if err := d.processAudio(ctx, event, log); err != nil {
		log.Error("Failed to process audio", zap.Error(err))
		d.increment(repositories.CounterErrors)
		d.log("error", fmt.Sprintf("Failed to process audio: %v", err))
		d.sendText(ctx, event.SenderID, ErrorMessage(err))
	}
}

func (d *Dispatcher) processAudio(ctx context.Context, event entities.InboundEvent, log *zap.Logger) error {
	duration := d.probeDuration(ctx, event.Payload, log)
	log.Info("Audio duration", zap.Int("seconds", duration))

	if err := d.checkDuration(duration); err != nil {
		log.Info("Rejecting audio", zap.Int("max", d.opts.MaxAudioDurationSeconds), zap.Error(err))
		d.reply(ctx, event.SenderID, TooLongMessage(d.opts.MaxAudioDurationSeconds))
		return nil
	}

	record := d.persistence.StoreAudio(ctx, event.SenderID, event.Payload, duration)

	convertCtx, cancel := context.WithTimeout(ctx, d.opts.ConvertTimeout)
	mp3, err := d.converter.Convert(convertCtx, event.Payload)
	cancel()
	if err != nil {
		return fmt.Errorf("convert audio: %w", err)
	}
	log.Info("Audio converted", zap.Int("mp3Bytes", len(mp3)))

	result, err := d.orchestrator.Process(ctx, mp3, event.SenderID)
	if err != nil {
		return fmt.Errorf("process audio: %w", err)
	}

	d.persistence.UpdateTranscription(ctx, record, result.Transcription, result.CorrectedText)

	if !d.sendText(ctx, event.SenderID, FormatReply(result)) {
		return nil
	}

	if d.opts.EnableAudioReply && result.HasCorrections && result.HasAudio() {
		if err := d.sender.SendAudio(ctx, event.SenderID, result.SynthesizedAudio, result.Transcription); err != nil {
			log.Error("Failed to send correction audio", zap.Error(err))
			d.increment(repositories.CounterErrors)
			d.log("error", fmt.Sprintf("Failed to send correction audio: %v", err))
			d.sendText(ctx, event.SenderID, MessageAudioSendFailure)
		} else {
			d.increment(repositories.CounterAudiosCorrected)
		}
	}

	d.increment(repositories.CounterMessagesProcessed)
	log.Info("Audio processed", zap.Bool("hasCorrections", result.HasCorrections))
	d.log("success", "Audio processed")
	return nil
}

func (d *Dispatcher) checkDuration(seconds int) error {
	if seconds > d.opts.MaxAudioDurationSeconds {
		return fmt.Errorf("%ds: %w", seconds, entities.ErrAudioTooLong)
	}
	return nil
}

// probeDuration never fails. Unreadable or non-positive lengths fall back to
// the default; lengths past maxSaneDuration are clamped to it, so they still
// hit the duration limit.
func (d *Dispatcher) probeDuration(ctx context.Context, audio []byte, log *zap.Logger) int {
	probeCtx, cancel := context.WithTimeout(ctx, d.opts.ProbeTimeout)
	defer cancel()

	seconds, err := d.converter.ProbeDuration(probeCtx, audio)
	if err != nil {
		log.Warn("Could not probe audio duration, using default",
			zap.Int("default", d.opts.DefaultDurationSeconds), zap.Error(err))
		return d.opts.DefaultDurationSeconds
	}
	if math.IsNaN(seconds) || seconds <= 0 {
		log.Warn("Implausible audio duration, using default",
			zap.Float64("probed", seconds), zap.Int("default", d.opts.DefaultDurationSeconds))
		return d.opts.DefaultDurationSeconds
	}
	if seconds >= maxSaneDuration {
		log.Warn("Implausible audio duration, clamping", zap.Float64("probed", seconds))
		return maxSaneDuration
	}
	return int(math.Ceil(seconds))
}

// sendText reports whether the message left the process
func (d *Dispatcher) sendText(ctx context.Context, to, text string) bool {
	if err := d.sender.SendText(ctx, to, text); err != nil {
		d.logger.Error("Failed to send message", zap.String("to", to), zap.Error(err))
		d.increment(repositories.CounterErrors)
		d.log("error", fmt.Sprintf("Failed to send message: %v", err))
		return false
	}
	return true
}

func (d *Dispatcher) increment(counter repositories.Counter) {
	if d.ops != nil {
		d.ops.Increment(counter)
	}
}

func (d *Dispatcher) log(level, message string) {
	if d.ops != nil {
		d.ops.Log(level, message)
	}
}

// ErrorMessage picks the user facing text for a failed request
func ErrorMessage(err error) string {
	switch {
	case IsConnectivity(err):
		return MessageConnectivity
	case errors.Is(err, entities.ErrInvalidAudio):
		return MessageCorruptedAudio
	default:
		return MessageGenericError
	}
}

// IsConnectivity reports whether err was caused by an unreachable or slow dependency
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, entities.ErrConnectivity) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var sendErr *smithyhttp.RequestSendError
	return errors.As(err, &sendErr)
}
