package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/falabot/server/adapters/memory"
	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
	"github.com/falabot/server/internal/conversation"
	"github.com/falabot/server/internal/persistence"
	"github.com/falabot/server/internal/provider"
)

type sentMessage struct {
	to      string
	text    string
	audio   []byte
	caption string
}

type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
	textErr  error
	audioErr error
}

func (f *fakeSender) SendText(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.textErr != nil {
		return f.textErr
	}
	f.messages = append(f.messages, sentMessage{to: to, text: text})
	return nil
}

func (f *fakeSender) SendAudio(_ context.Context, to string, audio []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.audioErr != nil {
		return f.audioErr
	}
	f.messages = append(f.messages, sentMessage{to: to, audio: audio, caption: caption})
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.audio == nil {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeSender) audios() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.messages {
		if m.audio != nil {
			out = append(out, m)
		}
	}
	return out
}

type fakeConverter struct {
	duration   float64
	probeErr   error
	convertErr error
	converted  atomic.Int32
}

func (f *fakeConverter) Convert(_ context.Context, audio []byte) ([]byte, error) {
	f.converted.Add(1)
	if f.convertErr != nil {
		return nil, f.convertErr
	}
	return append([]byte("mp3:"), audio...), nil
}

func (f *fakeConverter) ProbeDuration(_ context.Context, _ []byte) (float64, error) {
	return f.duration, f.probeErr
}

type fakeOrchestrator struct {
	result  *entities.PipelineResult
	err     error
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (f *fakeOrchestrator) Process(ctx context.Context, audio []byte, senderID string) (*entities.PipelineResult, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	r := *f.result
	return &r, nil
}

type fakeOps struct {
	mu       sync.Mutex
	counters map[repositories.Counter]int
	logs     []string
}

func (f *fakeOps) Increment(counter repositories.Counter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counters == nil {
		f.counters = make(map[repositories.Counter]int)
	}
	f.counters[counter]++
}

func (f *fakeOps) Log(level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, level+": "+message)
}

func (f *fakeOps) count(counter repositories.Counter) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[counter]
}

type downObjectStore struct{}

func (downObjectStore) Put(context.Context, string, []byte, string, bool) (string, error) {
	return "", errors.New("bucket unreachable")
}

type downRecords struct {
	*memory.AudioRecordRepository
}

func (downRecords) Insert(context.Context, *entities.AudioRecord) error {
	return errors.New("database unreachable")
}

type fixture struct {
	dispatcher   *Dispatcher
	sender       *fakeSender
	converter    *fakeConverter
	orchestrator *fakeOrchestrator
	ops          *fakeOps
	contexts     *conversation.Store
	records      *memory.AudioRecordRepository
	users        *memory.UserRepository
}

func correctionResult() *entities.PipelineResult {
	return &entities.PipelineResult{
		Transcription:    "eu vai no mercado",
		CorrectedText:    "Você quis dizer: eu vou ao mercado",
		HasCorrections:   true,
		ContentType:      entities.ContentTypeConversation,
		Reply:            "Que bom! O que você vai comprar?",
		SynthesizedAudio: []byte("ID3"),
	}
}

func newFixture(t *testing.T, opts Options, objects repositories.ObjectStore, records repositories.AudioRecordRepository) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &fixture{
		sender:       &fakeSender{},
		converter:    &fakeConverter{duration: 12.2},
		orchestrator: &fakeOrchestrator{result: correctionResult()},
		ops:          &fakeOps{},
		contexts:     conversation.NewStore(10, logger),
		records:      memory.NewAudioRecordRepository(),
		users:        memory.NewUserRepository(),
	}
	if objects == nil {
		objects = memory.NewObjectStore()
	}
	if records == nil {
		records = f.records
	}

	gateway := persistence.NewGateway(f.users, records, objects, logger,
		persistence.WithClock(time.Now, func(context.Context, time.Duration) error { return nil }))

	f.dispatcher = New(Deps{
		Orchestrator: f.orchestrator,
		Persistence:  gateway,
		Contexts:     f.contexts,
		Converter:    f.converter,
		Sender:       f.sender,
		Ops:          f.ops,
	}, opts, logger)
	return f
}

func audioEvent(id string) entities.InboundEvent {
	return entities.InboundEvent{
		MessageID:  id,
		SenderID:   "5549999999999@s.whatsapp.net",
		SenderName: "Ana",
		Kind:       entities.EventKindAudio,
		Payload:    []byte("OggS-voice-note"),
		MimeType:   "audio/ogg; codecs=opus",
		ReceivedAt: time.Now(),
	}
}

func TestHandle_AudioHappyPath(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, nil, nil)

	f.dispatcher.Handle(context.Background(), audioEvent("msg-1"))

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, MessageProcessing, texts[0])
	assert.Equal(t, FormatReply(correctionResult()), texts[1])
	assert.Empty(t, f.sender.audios(), "audio replies are disabled")

	assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesReceived))
	assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesProcessed))
	assert.Equal(t, 0, f.ops.count(repositories.CounterErrors))
	assert.Equal(t, 1, f.users.Count())
}

func TestHandle_SendsCorrectionAudio(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120, EnableAudioReply: true}, nil, nil)

	f.dispatcher.Handle(context.Background(), audioEvent("msg-1"))

	audios := f.sender.audios()
	require.Len(t, audios, 1)
	assert.Equal(t, []byte("ID3"), audios[0].audio)
	assert.Equal(t, "eu vai no mercado", audios[0].caption)
	assert.Equal(t, 1, f.ops.count(repositories.CounterAudiosCorrected))
	assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesProcessed))
}

func TestHandle_AudioSendFailureKeepsRequestSuccessful(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120, EnableAudioReply: true}, nil, nil)
	f.sender.audioErr = errors.New("media upload failed")

	f.dispatcher.Handle(context.Background(), audioEvent("msg-1"))

	texts := f.sender.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, MessageAudioSendFailure, texts[2])
	assert.Equal(t, 1, f.ops.count(repositories.CounterErrors))
	assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesProcessed))
	assert.Equal(t, 0, f.ops.count(repositories.CounterAudiosCorrected))
}

func TestHandle_ConcurrentDuplicateRunsOnce(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, nil, nil)
	f.orchestrator.started = make(chan struct{}, 1)
	f.orchestrator.release = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.dispatcher.Handle(context.Background(), audioEvent("msg-dup"))
	}()

	<-f.orchestrator.started
	f.dispatcher.Handle(context.Background(), audioEvent("msg-dup"))
	close(f.orchestrator.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.orchestrator.calls.Load())
	assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesReceived))

	// the id is released once the first run finishes
	f.orchestrator.started = nil
	f.orchestrator.release = nil
	f.dispatcher.Handle(context.Background(), audioEvent("msg-dup"))
	assert.Equal(t, int32(2), f.orchestrator.calls.Load())
}

func TestHandle_TooLongSkipsPipeline(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, nil, nil)
	f.converter.duration = 130

	f.dispatcher.Handle(context.Background(), audioEvent("msg-long"))

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, TooLongMessage(120), texts[1])
	assert.Equal(t, "⏱️ O áudio é muito longo. Por favor, envie áudios de até 2 minutos.", texts[1])
	assert.Equal(t, int32(0), f.orchestrator.calls.Load())
	assert.Equal(t, int32(0), f.converter.converted.Load())
	assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesProcessed))
	assert.Equal(t, 0, f.ops.count(repositories.CounterErrors))
}

func TestHandle_HugeDurationIsRejected(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
	}{
		{"three hours", 10800},
		{"exactly the sanity bound", 7200},
		{"infinite", math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, nil, nil)
			f.converter.duration = tt.seconds

			f.dispatcher.Handle(context.Background(), audioEvent("msg-huge"))

			texts := f.sender.texts()
			require.Len(t, texts, 2)
			assert.Equal(t, TooLongMessage(120), texts[1])
			assert.Equal(t, int32(0), f.orchestrator.calls.Load())
		})
	}
}

func TestHandle_NonPositiveDurationUsesDefault(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, nil, nil)
	f.converter.duration = 0

	f.dispatcher.Handle(context.Background(), audioEvent("msg-zero"))

	assert.Equal(t, int32(1), f.orchestrator.calls.Load())
}

func TestCheckDuration(t *testing.T) {
	d := New(Deps{}, Options{MaxAudioDurationSeconds: 60}, zap.NewNop())

	assert.NoError(t, d.checkDuration(60))
	assert.ErrorIs(t, d.checkDuration(61), entities.ErrAudioTooLong)
}

func TestHandle_CorrectionFailureSendsGenericError(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, nil, nil)
	f.orchestrator.err = &provider.ChainError{
		Capability: "correct",
		Attempts: []provider.Attempt{
			{Provider: "deepseek", Err: errors.New("status 500")},
			{Provider: "openai", Err: errors.New("status 500")},
		},
	}

	f.dispatcher.Handle(context.Background(), audioEvent("msg-1"))

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, MessageGenericError, texts[1])
	assert.Equal(t, 1, f.ops.count(repositories.CounterErrors))
	assert.Equal(t, 0, f.ops.count(repositories.CounterMessagesProcessed))
}

func TestHandle_StorageOutageStillReplies(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, downObjectStore{}, downRecords{memory.NewAudioRecordRepository()})

	f.dispatcher.Handle(context.Background(), audioEvent("msg-1"))

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, FormatReply(correctionResult()), texts[1])
	assert.Equal(t, int32(1), f.orchestrator.calls.Load())
	assert.Equal(t, 0, f.ops.count(repositories.CounterErrors))
}

func TestHandle_ProbeFailureUsesDefaultDuration(t *testing.T) {
	f := newFixture(t, Options{MaxAudioDurationSeconds: 5}, nil, nil)
	f.converter.probeErr = errors.New("ffprobe: not found")

	f.dispatcher.Handle(context.Background(), audioEvent("msg-1"))

	// the default of 10s is above the 5s limit
	assert.Equal(t, TooLongMessage(5), f.sender.texts()[1])
	assert.Equal(t, int32(0), f.orchestrator.calls.Load())
}

func TestHandle_ConversionErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"corrupted", fmt.Errorf("ffmpeg: %w", entities.ErrInvalidAudio), MessageCorruptedAudio},
		{"timeout", context.DeadlineExceeded, MessageConnectivity},
		{"other", errors.New("exit status 1"), MessageGenericError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{MaxAudioDurationSeconds: 120}, nil, nil)
			f.converter.convertErr = tt.err

			f.dispatcher.Handle(context.Background(), audioEvent("msg-1"))

			texts := f.sender.texts()
			require.Len(t, texts, 2)
			assert.Equal(t, tt.want, texts[1])
			assert.Equal(t, int32(0), f.orchestrator.calls.Load())
			assert.Equal(t, 1, f.ops.count(repositories.CounterErrors))
		})
	}
}

func TestHandle_TextCommands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"ping", MessagePong},
		{"  PING ", MessagePong},
		{"testaudio", MessageAudioDisabled},
		{"Limpar", MessageContextCleared},
		{"clear", MessageContextCleared},
		{"oi", MessageWelcome},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f := newFixture(t, Options{}, nil, nil)
			sender := "5549888888888@s.whatsapp.net"
			f.contexts.Append(sender, entities.UserTurn("olá"))

			f.dispatcher.Handle(context.Background(), entities.InboundEvent{
				MessageID: "txt-1",
				SenderID:  sender,
				Kind:      entities.EventKindText,
				Text:      tt.text,
			})

			assert.Equal(t, []string{tt.want}, f.sender.texts())
			assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesProcessed))
			if tt.want == MessageContextCleared {
				assert.Equal(t, 0, len(f.contexts.Window(sender, conversation.DefaultCapacity)))
			} else {
				assert.Equal(t, 1, len(f.contexts.Window(sender, conversation.DefaultCapacity)))
			}
		})
	}
}

func TestHandle_NotAudio(t *testing.T) {
	f := newFixture(t, Options{}, nil, nil)

	f.dispatcher.Handle(context.Background(), entities.InboundEvent{
		MessageID: "img-1",
		SenderID:  "5549777777777@s.whatsapp.net",
		Kind:      entities.EventKindOther,
	})

	assert.Equal(t, []string{MessageNotAudio}, f.sender.texts())
	assert.Equal(t, 1, f.ops.count(repositories.CounterMessagesProcessed))
}

func TestHandle_IgnoredEvents(t *testing.T) {
	f := newFixture(t, Options{}, nil, nil)

	events := []entities.InboundEvent{
		{MessageID: "g-1", SenderID: "120363@g.us", Kind: entities.EventKindAudio, Payload: []byte("x")},
		{MessageID: "s-1", SenderID: "status@broadcast", Kind: entities.EventKindText, Text: "ping"},
		{MessageID: "sys-1", SenderID: "5549@s.whatsapp.net", Kind: entities.EventKindSystem},
		{MessageID: "empty-1", SenderID: "5549@s.whatsapp.net", Kind: entities.EventKindAudio},
	}
	for _, e := range events {
		f.dispatcher.Handle(context.Background(), e)
	}

	assert.Empty(t, f.sender.texts())
	assert.Equal(t, 0, f.ops.count(repositories.CounterMessagesReceived))
	assert.Equal(t, 0, f.users.Count())
}

func TestHandle_SendFailureCountsError(t *testing.T) {
	f := newFixture(t, Options{}, nil, nil)
	f.sender.textErr = entities.ErrTransportUnavailable

	f.dispatcher.Handle(context.Background(), entities.InboundEvent{
		MessageID: "txt-1",
		SenderID:  "5549@s.whatsapp.net",
		Kind:      entities.EventKindText,
		Text:      "ping",
	})

	assert.Equal(t, 1, f.ops.count(repositories.CounterErrors))
	assert.Equal(t, 0, f.ops.count(repositories.CounterMessagesProcessed))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"sentinel connectivity", fmt.Errorf("whisper: %w", entities.ErrConnectivity), MessageConnectivity},
		{"net error", &net.OpError{Op: "dial", Err: timeoutErr{}}, MessageConnectivity},
		{"wrapped in chain", &provider.ChainError{Capability: "transcribe", Attempts: []provider.Attempt{
			{Provider: "google-speech", Err: errors.New("permission denied")},
			{Provider: "openai-whisper", Err: context.DeadlineExceeded},
		}}, MessageConnectivity},
		{"invalid audio", fmt.Errorf("transcribe: %w", entities.ErrInvalidAudio), MessageCorruptedAudio},
		{"generic", errors.New("boom"), MessageGenericError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage(tt.err))
		})
	}
}

func TestFormatReply(t *testing.T) {
	result := &entities.PipelineResult{
		Transcription: "la la la",
		CorrectedText: "🎵 Fragmento musical detectado, correção não aplicada.",
		ContentType:   entities.ContentTypeMusic,
		Reply:         "Que legal!",
	}

	want := "🎯 *Transcrição:*\n_\"la la la\"_\n\n" +
		"📝 *Correção:*\n🎵 Fragmento musical detectado, correção não aplicada.\n\n" +
		"🎵 *Detectado:* Fragmento de música\n\n" +
		"💬 *Conversa:*\nQue legal!"
	assert.Equal(t, want, FormatReply(result))

	result.ContentType = entities.ContentTypeQuestion
	assert.Contains(t, FormatReply(result), "❓ *Detectado:* Pergunta de conhecimento\n\n")

	result.ContentType = entities.ContentTypeConversation
	assert.NotContains(t, FormatReply(result), "*Detectado:*")
}

func TestTooLongMessage(t *testing.T) {
	assert.Equal(t, "⏱️ O áudio é muito longo. Por favor, envie áudios de até 1 minuto.", TooLongMessage(60))
	assert.Equal(t, "⏱️ O áudio é muito longo. Por favor, envie áudios de até 90 segundos.", TooLongMessage(90))
}
