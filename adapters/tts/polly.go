package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/repositories"
)

// synthClient is the subset of the Polly client used here
type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig configures the Amazon Polly adapter
type PollyConfig struct {
	Region       string
	VoiceID      string // default Camila
	LanguageCode string // default pt-BR
	Neural       bool
}

// PollyTTS implements TextToSpeech with Amazon Polly
type PollyTTS struct {
	client synthClient
	cfg    PollyConfig
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*PollyTTS)(nil)

// NewPollyTTS loads the default AWS credential chain for the configured region
func NewPollyTTS(ctx context.Context, cfg PollyConfig, logger *zap.Logger) (*PollyTTS, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("aws region is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newPollyTTS(polly.NewFromConfig(awsCfg), cfg, logger), nil
}

func newPollyTTS(client synthClient, cfg PollyConfig, logger *zap.Logger) *PollyTTS {
	if cfg.VoiceID == "" {
		cfg.VoiceID = "Camila"
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "pt-BR"
	}
	return &PollyTTS{client: client, cfg: cfg, logger: logger}
}

func (p *PollyTTS) Name() string {
	return "amazon-polly"
}

func (p *PollyTTS) ConvertTextToSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	engine := pollytypes.EngineStandard
	if p.cfg.Neural {
		engine = pollytypes.EngineNeural
	}

	output, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		LanguageCode: pollytypes.LanguageCode(p.cfg.LanguageCode),
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.cfg.VoiceID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("polly synthesize failed (%s): %w", apiErr.ErrorCode(), err)
		}
		return nil, fmt.Errorf("polly synthesize failed: %w", err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, fmt.Errorf("polly returned no audio stream")
	}
	defer output.AudioStream.Close()

	audio, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("failed to read polly audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("polly returned empty audio")
	}

	p.logger.Debug("Polly synthesis completed", zap.String("voice", p.cfg.VoiceID), zap.Int("bytes", len(audio)))
	return audio, nil
}
