package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/entities"
	"github.com/falabot/server/domain/repositories"
)

type fakeChat struct {
	name     string
	reply    string
	err      error
	calls    int
	lastMsgs []repositories.ChatMessage
	lastOpts repositories.CompletionOptions
}

func (f *fakeChat) Name() string { return f.name }

func (f *fakeChat) Complete(_ context.Context, messages []repositories.ChatMessage, opts repositories.CompletionOptions) (string, error) {
	f.calls++
	f.lastMsgs = messages
	f.lastOpts = opts
	return f.reply, f.err
}

type fakeSpeech struct {
	name   string
	text   string
	err    error
	calls  int
	config repositories.AudioConfig
}

func (f *fakeSpeech) Name() string { return f.name }

func (f *fakeSpeech) TranscribeAudio(_ context.Context, _ []byte, config repositories.AudioConfig) (string, error) {
	f.calls++
	f.config = config
	return f.text, f.err
}

type fakeVoice struct {
	name  string
	audio []byte
	err   error
	calls int
	text  string
}

func (f *fakeVoice) Name() string { return f.name }

func (f *fakeVoice) ConvertTextToSpeech(_ context.Context, text string) ([]byte, error) {
	f.calls++
	f.text = text
	return f.audio, f.err
}

var errUpstream = errors.New("upstream unavailable")

func TestCorrectorChain_FallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeChat{name: "deepseek", err: errUpstream}
	fallback := &fakeChat{name: "openai", reply: "Você quis dizer: Eu fui ao mercado"}

	chain := NewCorrectorChain([]repositories.ChatModel{primary, fallback}, zap.NewNop())
	out, err := chain.Correct(context.Background(), "eu foi no mercado")

	require.NoError(t, err)
	assert.Equal(t, "Você quis dizer: Eu fui ao mercado", out)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, correctionOptions, fallback.lastOpts)
	require.Len(t, fallback.lastMsgs, 2)
	assert.Equal(t, repositories.SystemRole, fallback.lastMsgs[0].Role)
	assert.Equal(t, "eu foi no mercado", fallback.lastMsgs[1].Content)
}

func TestCorrectorChain_SkipsFallbackWhenPrimarySucceeds(t *testing.T) {
	primary := &fakeChat{name: "deepseek", reply: CorrectSentinel}
	fallback := &fakeChat{name: "openai", reply: "unused"}

	chain := NewCorrectorChain([]repositories.ChatModel{primary, fallback}, zap.NewNop())
	out, err := chain.Correct(context.Background(), "eu fui ao mercado")

	require.NoError(t, err)
	assert.Equal(t, CorrectSentinel, out)
	assert.Equal(t, 0, fallback.calls)
}

func TestCorrectorChain_AllProvidersFail(t *testing.T) {
	primary := &fakeChat{name: "deepseek", err: errUpstream}
	fallback := &fakeChat{name: "openai", err: context.DeadlineExceeded}

	chain := NewCorrectorChain([]repositories.ChatModel{primary, fallback}, zap.NewNop())
	_, err := chain.Correct(context.Background(), "texto")

	require.Error(t, err)
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, "correction", chainErr.Capability)
	assert.Len(t, chainErr.Attempts, 2)
	assert.ErrorIs(t, err, errUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "deepseek")
	assert.Contains(t, err.Error(), "openai")
}

func TestTryInOrder_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := &fakeChat{name: "deepseek", err: errUpstream}
	fallback := &fakeChat{name: "openai", reply: "unused"}
	cancel()

	chain := NewCorrectorChain([]repositories.ChatModel{primary, fallback}, zap.NewNop())
	_, err := chain.Correct(ctx, "texto")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fallback.calls)
}

func TestChainError_NoProviders(t *testing.T) {
	chain := NewSynthesisChain(nil, zap.NewNop())
	_, err := chain.Synthesize(context.Background(), "olá")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider configured")
}

func TestSpeechChain_PassesLanguageAndEncoding(t *testing.T) {
	whisper := &fakeSpeech{name: "openai-whisper", text: "olá tudo bem"}
	chain := NewSpeechChain([]repositories.SpeechToText{whisper}, "pt-BR", zap.NewNop())

	text, err := chain.Transcribe(context.Background(), []byte("mp3"))
	require.NoError(t, err)
	assert.Equal(t, "olá tudo bem", text)
	assert.Equal(t, "MP3", whisper.config.Encoding)
	assert.Equal(t, "pt-BR", whisper.config.Language)
	assert.Equal(t, []string{"openai-whisper"}, chain.Providers())
}

func TestConverserChain_BuildsHistoryMessages(t *testing.T) {
	model := &fakeChat{name: "gemini", reply: "Que bom!"}
	chain := NewConverserChain([]repositories.ChatModel{model}, zap.NewNop())

	history := []entities.ConversationTurn{
		entities.UserTurn("oi"),
		entities.AssistantTurn("olá!"),
	}
	reply, err := chain.Converse(context.Background(), entities.ContentTypeQuestion, history, "qual a capital do Brasil?")

	require.NoError(t, err)
	assert.Equal(t, "Que bom!", reply)
	require.Len(t, model.lastMsgs, 4)
	assert.Equal(t, repositories.ChatMessage{Role: repositories.SystemRole, Content: ConversePolicy(entities.ContentTypeQuestion)}, model.lastMsgs[0])
	assert.Equal(t, repositories.UserRole, model.lastMsgs[1].Role)
	assert.Equal(t, repositories.AssistantRole, model.lastMsgs[2].Role)
	assert.Equal(t, "qual a capital do Brasil?", model.lastMsgs[3].Content)
	assert.Equal(t, converseOptions, model.lastOpts)
}

func TestModelClassifier_Classify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  entities.ContentType
	}{
		{"music", "MUSIC", nil, entities.ContentTypeMusic},
		{"question with noise", "Resposta: question.", nil, entities.ContentTypeQuestion},
		{"unparseable", "não sei", nil, entities.ContentTypeConversation},
		{"provider error", "", errUpstream, entities.ContentTypeConversation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeChat{name: "gemini", reply: tt.reply, err: tt.err}
			got, err := NewModelClassifier(model).Classify(context.Background(), "la la la")
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, classificationOptions, model.lastOpts)
		})
	}
}

func TestModelClassifier_NilModel(t *testing.T) {
	got, err := NewModelClassifier(nil).Classify(context.Background(), "texto")
	assert.ErrorIs(t, err, entities.ErrProviderUnavailable)
	assert.Equal(t, entities.ContentTypeConversation, got)
}

func TestPromptHelpers(t *testing.T) {
	assert.False(t, HasCorrections(CorrectSentinel))
	assert.True(t, HasCorrections("Você quis dizer: Eu fui ao mercado"))
	assert.Equal(t, "Eu fui ao mercado", SpokenCorrection("Você quis dizer: Eu fui ao mercado"))
	assert.Equal(t, CannedReply(entities.ContentTypeConversation), CannedReply("UNKNOWN"))
	assert.Equal(t, ConversePolicy(entities.ContentTypeConversation), ConversePolicy(""))
	assert.NotEqual(t, CannedReply(entities.ContentTypeMusic), CannedReply(entities.ContentTypeQuestion))
}

func fullCatalog() *Catalog {
	c := NewCatalog()
	c.SpeechToText[Whisper] = &fakeSpeech{name: Whisper}
	c.SpeechToText[GoogleSpeech] = &fakeSpeech{name: GoogleSpeech}
	c.Chat[OpenAIChat] = &fakeChat{name: OpenAIChat}
	c.Chat[DeepSeekChat] = &fakeChat{name: DeepSeekChat}
	c.Chat[GeminiChat] = &fakeChat{name: GeminiChat}
	c.TextToSpeech[OpenAITTS] = &fakeVoice{name: OpenAITTS}
	c.TextToSpeech[ElevenLabs] = &fakeVoice{name: ElevenLabs}
	c.TextToSpeech[Polly] = &fakeVoice{name: Polly}
	return c
}

func TestBuild_ProviderMatrix(t *testing.T) {
	tests := []struct {
		mode       entities.ProviderMode
		speech     []string
		classifier string
		correct    []string
		converse   []string
		speak      []string
	}{
		{
			mode:       entities.ProviderModePrimaryOnly,
			speech:     []string{Whisper},
			classifier: OpenAIChat,
			correct:    []string{OpenAIChat},
			converse:   []string{OpenAIChat},
			speak:      []string{OpenAITTS},
		},
		{
			mode:       entities.ProviderModeHybrid,
			speech:     []string{Whisper, GoogleSpeech},
			classifier: DeepSeekChat,
			correct:    []string{DeepSeekChat, OpenAIChat},
			converse:   []string{DeepSeekChat, OpenAIChat},
			speak:      []string{OpenAITTS, ElevenLabs},
		},
		{
			mode:       entities.ProviderModeCostOptimized,
			speech:     []string{GoogleSpeech, Whisper},
			classifier: GeminiChat,
			correct:    []string{DeepSeekChat, OpenAIChat},
			converse:   []string{GeminiChat, OpenAIChat},
			speak:      []string{Polly, OpenAITTS},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			set, err := Build(tt.mode, fullCatalog(), "pt-BR", zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, tt.mode, set.Mode)
			assert.Equal(t, tt.speech, set.Transcriber.Providers())
			assert.Equal(t, tt.classifier, set.Classifier.model.Name())
			assert.Equal(t, tt.correct, set.Corrector.Providers())
			assert.Equal(t, tt.converse, set.Converser.Providers())
			require.NotNil(t, set.Synthesizer)
			assert.Equal(t, tt.speak, set.Synthesizer.Providers())
		})
	}
}

func TestBuild_PrimaryOnlyNeverFallsBack(t *testing.T) {
	catalog := fullCatalog()
	openai := catalog.Chat[OpenAIChat].(*fakeChat)
	openai.err = errUpstream

	set, err := Build(entities.ProviderModePrimaryOnly, catalog, "pt-BR", zap.NewNop())
	require.NoError(t, err)

	_, err = set.Corrector.Correct(context.Background(), "texto")
	require.Error(t, err)
	assert.Equal(t, 1, openai.calls)
	assert.Equal(t, 0, catalog.Chat[DeepSeekChat].(*fakeChat).calls)
	assert.Equal(t, 0, catalog.Chat[GeminiChat].(*fakeChat).calls)
}

func TestBuild_SkipsMissingProviders(t *testing.T) {
	catalog := NewCatalog()
	catalog.SpeechToText[Whisper] = &fakeSpeech{name: Whisper}
	catalog.Chat[OpenAIChat] = &fakeChat{name: OpenAIChat}

	set, err := Build(entities.ProviderModeCostOptimized, catalog, "pt-BR", zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{Whisper}, set.Transcriber.Providers())
	assert.Equal(t, []string{OpenAIChat}, set.Corrector.Providers())
	assert.Equal(t, []string{OpenAIChat}, set.Converser.Providers())
	assert.Equal(t, OpenAIChat, set.Classifier.model.Name())
	assert.Nil(t, set.Synthesizer)
}

func TestBuild_RequiredCapabilities(t *testing.T) {
	noSpeech := NewCatalog()
	noSpeech.Chat[OpenAIChat] = &fakeChat{name: OpenAIChat}
	_, err := Build(entities.ProviderModeHybrid, noSpeech, "pt-BR", zap.NewNop())
	assert.ErrorIs(t, err, entities.ErrProviderUnavailable)

	noChat := NewCatalog()
	noChat.SpeechToText[Whisper] = &fakeSpeech{name: Whisper}
	_, err = Build(entities.ProviderModeHybrid, noChat, "pt-BR", zap.NewNop())
	assert.ErrorIs(t, err, entities.ErrProviderUnavailable)

	_, err = Build("turbo", fullCatalog(), "pt-BR", zap.NewNop())
	assert.Error(t, err)
}
