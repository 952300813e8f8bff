package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/falabot/server/adapters/audio"
	"github.com/falabot/server/adapters/tts"
	"github.com/falabot/server/domain/repositories"
)

func main() {
	provider := pflag.StringP("provider", "p", "elevenlabs", "voice provider: elevenlabs, openai or polly")
	text := pflag.StringP("text", "t", "Olá! Esta é uma amostra da voz usada nas correções de pronúncia.", "text to synthesize")
	output := pflag.StringP("out", "o", "sample.mp3", "output mp3 file")
	play := pflag.Bool("play", false, "play the sample with ffplay when done")
	pflag.Parse()

	godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	voice, err := newVoice(ctx, *provider, logger)
	if err != nil {
		logger.Fatal("Failed to create TTS service", zap.String("provider", *provider), zap.Error(err))
	}

	logger.Info("Converting text to speech", zap.String("provider", voice.Name()), zap.String("text", *text))

	mp3, err := voice.ConvertTextToSpeech(ctx, *text)
	if err != nil {
		logger.Fatal("Failed to convert text to speech", zap.Error(err))
	}

	if err := os.WriteFile(*output, mp3, 0o644); err != nil {
		logger.Fatal("Failed to write output file", zap.Error(err))
	}

	converter := audio.NewConverter("", "", logger)
	seconds, err := converter.ProbeDuration(ctx, mp3)
	if err != nil {
		logger.Warn("Could not measure sample duration", zap.Error(err))
	}

	fmt.Printf("Saved %s (%d bytes, %.1fs)\n", *output, len(mp3), seconds)

	if *play {
		cmd := exec.CommandContext(ctx, "ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", *output)
		if err := cmd.Run(); err != nil {
			logger.Warn("Failed to play audio", zap.Error(err))
			fmt.Printf("Play it manually with: ffplay -nodisp -autoexit %s\n", *output)
		}
	}
}

func newVoice(ctx context.Context, provider string, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch provider {
	case "elevenlabs":
		return tts.NewElevenLabsTTS(tts.NewElevenLabsConfigFromEnv(), logger)
	case "openai":
		return tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Voice:  os.Getenv("OPENAI_TTS_VOICE"),
		}, logger)
	case "polly":
		return tts.NewPollyTTS(ctx, tts.PollyConfig{
			Region:  os.Getenv("AWS_REGION"),
			VoiceID: os.Getenv("AWS_POLLY_VOICE"),
			Neural:  true,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
