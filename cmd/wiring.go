package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/falabot/server/adapters/llm"
	"github.com/falabot/server/adapters/memory"
	"github.com/falabot/server/adapters/mongo"
	"github.com/falabot/server/adapters/objectstore"
	"github.com/falabot/server/adapters/stt"
	"github.com/falabot/server/adapters/tts"
	"github.com/falabot/server/domain/repositories"
	"github.com/falabot/server/internal/config"
	"github.com/falabot/server/internal/inflight"
	"github.com/falabot/server/internal/provider"
)

// buildCatalog configures every provider that has credentials. Providers that
// fail to initialize are left out and provider.Build decides if that is fatal.
func buildCatalog(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*provider.Catalog, func()) {
	catalog := provider.NewCatalog()
	var closers []func() error

	if cfg.OpenAI.APIKey != "" {
		whisper, err := stt.NewWhisperSpeechToText(stt.WhisperConfig{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.WhisperModel,
			Language: cfg.Language,
		}, logger)
		register(logger, provider.Whisper, err, func() { catalog.SpeechToText[provider.Whisper] = whisper })

		gpt, err := llm.NewOpenAIChat(llm.OpenAIConfig{
			Name:    provider.OpenAIChat,
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.GPTModel,
		}, logger)
		register(logger, provider.OpenAIChat, err, func() { catalog.Chat[provider.OpenAIChat] = gpt })

		voice, err := tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.TTSModel,
			Voice:   cfg.OpenAI.TTSVoice,
		}, logger)
		register(logger, provider.OpenAITTS, err, func() { catalog.TextToSpeech[provider.OpenAITTS] = voice })
	}

	if cfg.DeepSeek.APIKey != "" {
		deepseek, err := llm.NewOpenAIChat(llm.OpenAIConfig{
			Name:    provider.DeepSeekChat,
			APIKey:  cfg.DeepSeek.APIKey,
			BaseURL: cfg.DeepSeek.BaseURL,
			Model:   cfg.DeepSeek.Model,
		}, logger)
		register(logger, provider.DeepSeekChat, err, func() { catalog.Chat[provider.DeepSeekChat] = deepseek })
	}

	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiChat(ctx, llm.GeminiConfig{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.Model,
		}, logger)
		register(logger, provider.GeminiChat, err, func() { catalog.Chat[provider.GeminiChat] = gemini })
	}

	if cfg.Speech.Enabled {
		google, err := stt.NewGoogleSpeechToText(ctx, cfg.Speech.Language, logger)
		register(logger, provider.GoogleSpeech, err, func() {
			catalog.SpeechToText[provider.GoogleSpeech] = google
			closers = append(closers, google.Close)
		})
	}

	if cfg.ElevenLabs.APIKey != "" {
		eleven, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabs.APIKey,
			VoiceID:      cfg.ElevenLabs.VoiceID,
			LanguageCode: cfg.Language,
		}, logger)
		register(logger, provider.ElevenLabs, err, func() { catalog.TextToSpeech[provider.ElevenLabs] = eleven })
	}

	if cfg.AWS.PollyEnabled {
		polly, err := tts.NewPollyTTS(ctx, tts.PollyConfig{
			Region:  cfg.AWS.Region,
			VoiceID: cfg.AWS.PollyVoice,
			Neural:  true,
		}, logger)
		register(logger, provider.Polly, err, func() { catalog.TextToSpeech[provider.Polly] = polly })
	}

	return catalog, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("Failed to close provider client", zap.Error(err))
			}
		}
	}
}

func register(logger *zap.Logger, key string, err error, add func()) {
	if err != nil {
		logger.Warn("Provider not configured", zap.String("provider", key), zap.Error(err))
		return
	}
	add()
	logger.Info("Provider configured", zap.String("provider", key))
}

type storageBackends struct {
	users   repositories.UserRepository
	records repositories.AudioRecordRepository
	objects repositories.ObjectStore
	close   func(ctx context.Context)
}

func buildStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storageBackends, error) {
	s := &storageBackends{close: func(context.Context) {}}

	switch cfg.Storage.Backend {
	case "mongo":
		client, err := mongo.NewClient(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		s.users = mongo.NewUserRepository(client.Database)
		s.records = mongo.NewAudioRecordRepository(client.Database)
		s.close = func(ctx context.Context) { _ = client.Close(ctx) }
	default:
		logger.Warn("Using in-memory user and audio record storage, data is lost on restart")
		s.users = memory.NewUserRepository()
		s.records = memory.NewAudioRecordRepository()
	}

	switch cfg.Storage.ObjectBackend {
	case "s3":
		store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Region:       cfg.AWS.Region,
			Bucket:       cfg.AWS.S3Bucket,
			Endpoint:     cfg.AWS.S3Endpoint,
			AccessKey:    cfg.AWS.AccessKey,
			SecretKey:    cfg.AWS.SecretKey,
			UsePathStyle: cfg.AWS.UsePathHost,
		}, logger)
		if err != nil {
			s.close(ctx)
			return nil, err
		}
		s.objects = store
	default:
		logger.Warn("Using in-memory object store for audio payloads")
		s.objects = memory.NewObjectStore()
	}

	return s, nil
}

func buildInflight(ctx context.Context, cfg *config.Config, logger *zap.Logger) (inflight.Set, func()) {
	if cfg.Inflight.Backend != "redis" {
		return inflight.NewMemorySet(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Inflight.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unreachable, in-flight set will fall back to local state until it recovers",
			zap.String("addr", cfg.Inflight.RedisAddr), zap.Error(err))
	}

	return inflight.NewRedisSet(client, cfg.Inflight.TTL, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
}
