package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/internal/conversation"
	"github.com/falabot/server/internal/pipeline"
	"github.com/falabot/server/internal/provider"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(context.Context, []byte) (string, error) { return s.text, s.err }

type stubClassifier struct {
	contentType entities.ContentType
	err         error
}

func (s *stubClassifier) Classify(context.Context, string) (entities.ContentType, error) {
	return s.contentType, s.err
}

type stubCorrector struct {
	out   string
	err   error
	calls int
}

func (s *stubCorrector) Correct(context.Context, string) (string, error) {
	s.calls++
	return s.out, s.err
}

type stubConverser struct {
	reply       string
	err         error
	history     []entities.ConversationTurn
	contentType entities.ContentType
}

func (s *stubConverser) Converse(_ context.Context, ct entities.ContentType, history []entities.ConversationTurn, _ string) (string, error) {
	s.contentType = ct
	s.history = history
	return s.reply, s.err
}

type stubSynthesizer struct {
	audio []byte
	err   error
	text  string
	calls int
}

func (s *stubSynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.calls++
	s.text = text
	return s.audio, s.err
}

type fixture struct {
	transcriber *stubTranscriber
	classifier  *stubClassifier
	corrector   *stubCorrector
	converser   *stubConverser
	synthesizer *stubSynthesizer
	store       *conversation.Store
}

func newFixture() *fixture {
	return &fixture{
		transcriber: &stubTranscriber{text: "este texto tem alguns eros"},
		classifier:  &stubClassifier{contentType: entities.ContentTypeConversation},
		corrector:   &stubCorrector{out: "Você quis dizer: este texto tem alguns erros"},
		converser:   &stubConverser{reply: "Entendi, me conte mais!"},
		synthesizer: &stubSynthesizer{audio: []byte("mp3")},
		store:       conversation.NewStore(conversation.DefaultCapacity, zap.NewNop()),
	}
}

func (f *fixture) orchestrator(audioReply bool) *Orchestrator {
	return New(Capabilities{
		Transcriber: f.transcriber,
		Classifier:  f.classifier,
		Corrector:   f.corrector,
		Converser:   f.converser,
		Synthesizer: f.synthesizer,
	}, f.store, Options{EnableAudioReply: audioReply}, zap.NewNop())
}

const sender = "5511988887777@s.whatsapp.net"

func TestProcess_CorrectionScenario(t *testing.T) {
	f := newFixture()

	result, err := f.orchestrator(false).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	assert.Equal(t, "este texto tem alguns eros", result.Transcription)
	assert.Equal(t, "Você quis dizer: este texto tem alguns erros", result.CorrectedText)
	assert.True(t, result.HasCorrections)
	assert.Equal(t, entities.ContentTypeConversation, result.ContentType)
	assert.Equal(t, "Entendi, me conte mais!", result.Reply)
	assert.False(t, result.HasAudio())
	assert.Equal(t, 0, f.synthesizer.calls)

	assert.Equal(t, []entities.ConversationTurn{
		entities.UserTurn("este texto tem alguns eros"),
		entities.AssistantTurn("Entendi, me conte mais!"),
	}, f.store.Window(sender, 10))
}

func TestProcess_CorrectTranscriptionHasNoCorrections(t *testing.T) {
	f := newFixture()
	f.corrector.out = provider.CorrectSentinel

	result, err := f.orchestrator(true).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	assert.False(t, result.HasCorrections)
	assert.Equal(t, 0, f.synthesizer.calls)
}

func TestProcess_CorrectionFailureAborts(t *testing.T) {
	f := newFixture()
	f.corrector.err = &provider.ChainError{Capability: "correction", Attempts: []provider.Attempt{
		{Provider: "deepseek", Err: errors.New("503")},
		{Provider: "openai", Err: errors.New("timeout")},
	}}

	result, err := f.orchestrator(true).Process(context.Background(), []byte("mp3"), sender)

	require.Error(t, err)
	assert.Nil(t, result)
	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageCorrect, stageErr.Stage)
	var chainErr *provider.ChainError
	assert.ErrorAs(t, err, &chainErr)
	assert.Equal(t, 0, len(f.store.Window(sender, conversation.DefaultCapacity)))
}

func TestProcess_TranscriptionFailureAborts(t *testing.T) {
	f := newFixture()
	f.transcriber.err = errors.New("whisper down")

	_, err := f.orchestrator(false).Process(context.Background(), []byte("mp3"), sender)

	var stageErr *pipeline.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageTranscribe, stageErr.Stage)
	assert.Equal(t, 0, f.corrector.calls)
}

func TestProcess_EmptyTranscriptionIsInvalidAudio(t *testing.T) {
	f := newFixture()
	f.transcriber.text = "   "

	_, err := f.orchestrator(false).Process(context.Background(), []byte("mp3"), sender)
	assert.ErrorIs(t, err, entities.ErrInvalidAudio)
}

func TestProcess_ClassifierFailureDegradesToConversation(t *testing.T) {
	f := newFixture()
	f.classifier.err = errors.New("gemini quota")
	f.classifier.contentType = entities.ContentTypeMusic

	result, err := f.orchestrator(false).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	assert.Equal(t, entities.ContentTypeConversation, result.ContentType)
	assert.Equal(t, entities.ContentTypeConversation, f.converser.contentType)
	assert.Equal(t, 1, f.corrector.calls)
}

func TestProcess_MusicSkipsCorrection(t *testing.T) {
	f := newFixture()
	f.classifier.contentType = entities.ContentTypeMusic

	result, err := f.orchestrator(true).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	assert.Equal(t, 0, f.corrector.calls)
	assert.Equal(t, provider.MusicPassThrough, result.CorrectedText)
	assert.False(t, result.HasCorrections)
	assert.Equal(t, entities.ContentTypeMusic, f.converser.contentType)
	assert.Equal(t, 0, f.synthesizer.calls)
}

func TestProcess_ConverseFailureUsesCannedReply(t *testing.T) {
	f := newFixture()
	f.classifier.contentType = entities.ContentTypeQuestion
	f.converser.err = errors.New("all chat providers failed")

	result, err := f.orchestrator(false).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	assert.Equal(t, provider.CannedReply(entities.ContentTypeQuestion), result.Reply)
	window := f.store.Window(sender, 2)
	require.Len(t, window, 2)
	assert.Equal(t, entities.AssistantTurn(provider.CannedReply(entities.ContentTypeQuestion)), window[1])
}

func TestProcess_ConverseReceivesLastFourTurns(t *testing.T) {
	f := newFixture()
	for i := 0; i < 4; i++ {
		f.store.Append(sender, entities.UserTurn("antigo"), entities.AssistantTurn("resposta"))
	}
	f.store.Append(sender, entities.UserTurn("recente"), entities.AssistantTurn("última"))

	_, err := f.orchestrator(false).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	require.Len(t, f.converser.history, DefaultContextWindow)
	assert.Equal(t, entities.AssistantTurn("última"), f.converser.history[3])
	assert.Equal(t, conversation.DefaultCapacity, len(f.store.Window(sender, conversation.DefaultCapacity)))
}

func TestProcess_SynthesizesSpokenCorrection(t *testing.T) {
	f := newFixture()

	result, err := f.orchestrator(true).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	assert.Equal(t, "este texto tem alguns erros", f.synthesizer.text)
	assert.Equal(t, []byte("mp3"), result.SynthesizedAudio)
	assert.True(t, result.HasAudio())
}

func TestProcess_SynthesisFailureDegrades(t *testing.T) {
	f := newFixture()
	f.synthesizer.err = errors.New("polly throttled")

	result, err := f.orchestrator(true).Process(context.Background(), []byte("mp3"), sender)

	require.NoError(t, err)
	assert.False(t, result.HasAudio())
	assert.True(t, result.HasCorrections)
	assert.NotEmpty(t, result.Reply)
}

func TestProcess_NoSynthesizerConfigured(t *testing.T) {
	f := newFixture()
	o := New(Capabilities{
		Transcriber: f.transcriber,
		Classifier:  f.classifier,
		Corrector:   f.corrector,
		Converser:   f.converser,
	}, f.store, Options{EnableAudioReply: true}, zap.NewNop())

	result, err := o.Process(context.Background(), []byte("mp3"), sender)
	require.NoError(t, err)
	assert.False(t, result.HasAudio())
}

func TestProcess_RecordsStageStates(t *testing.T) {
	f := newFixture()
	f.classifier.err = errors.New("down")
	o := f.orchestrator(false)

	_, err := o.Process(context.Background(), []byte("mp3"), sender)
	require.NoError(t, err)

	recent := o.Runner().Recent()
	require.Len(t, recent, 1)
	states := map[pipeline.StageID]pipeline.StageState{}
	for _, s := range recent[0].Stages {
		states[s.ID] = s.State
	}
	assert.Equal(t, map[pipeline.StageID]pipeline.StageState{
		StageTranscribe: pipeline.StageStateCompleted,
		StageClassify:   pipeline.StageStateDegraded,
		StageCorrect:    pipeline.StageStateCompleted,
		StageConverse:   pipeline.StageStateCompleted,
		StageSynthesize: pipeline.StageStateSkipped,
	}, states)
}

func TestCapabilitiesFrom_NilSynthesizer(t *testing.T) {
	caps := CapabilitiesFrom(&provider.Set{})
	assert.Nil(t, caps.Synthesizer)
}
