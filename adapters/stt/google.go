package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/hajimehoshi/go-mp3"
	"go.uber.org/zap"

	"github.com/falabot/server/domain/repositories"
)

// Synchronous recognition only accepts about a minute of audio.
const syncRecognizeLimitBytes = 55 * 16000 * 2 * 2

// recognizer is the subset of the Speech client used here
type recognizer interface {
	recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	longRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)
	Close() error
}

type speechClient struct {
	client *speech.Client
}

func (c speechClient) recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return c.client.Recognize(ctx, req)
}

func (c speechClient) longRunningRecognize(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
	op, err := c.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, err
	}
	return op.Wait(ctx)
}

func (c speechClient) Close() error {
	return c.client.Close()
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client   recognizer
	language string
	logger   *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a client using application default credentials
func NewGoogleSpeechToText(ctx context.Context, language string, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return newGoogleSpeechToText(speechClient{client: client}, language, logger), nil
}

func newGoogleSpeechToText(client recognizer, language string, logger *zap.Logger) *GoogleSpeechToText {
	if language == "" {
		language = "pt-BR"
		logger.Info("Using default language", zap.String("language", language))
	}
	return &GoogleSpeechToText{client: client, language: language, logger: logger}
}

func (g *GoogleSpeechToText) Name() string {
	return "google-speech"
}

// TranscribeAudio recognises a complete payload. MP3 input is decoded to
// LINEAR16 first so the stable v1 API can be used.
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	language := config.Language
	if language == "" || len(language) == 2 {
		language = g.language
	}

	recognitionConfig := &speechpb.RecognitionConfig{
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}

	content := audioData
	if strings.EqualFold(config.Encoding, "MP3") {
		pcm, sampleRate, err := decodeMP3(audioData)
		if err != nil {
			return "", err
		}
		content = pcm
		recognitionConfig.Encoding = speechpb.RecognitionConfig_LINEAR16
		recognitionConfig.SampleRateHertz = int32(sampleRate)
		recognitionConfig.AudioChannelCount = 2
	} else {
		encoding, err := getAudioEncoding(config.Encoding)
		if err != nil {
			return "", err
		}
		recognitionConfig.Encoding = encoding
		if config.SampleRate > 0 {
			recognitionConfig.SampleRateHertz = int32(config.SampleRate)
		}
	}

	audio := &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
	}

	var results []*speechpb.SpeechRecognitionResult
	if len(content) <= syncRecognizeLimitBytes {
		resp, err := g.client.recognize(ctx, &speechpb.RecognizeRequest{Config: recognitionConfig, Audio: audio})
		if err != nil {
			return "", fmt.Errorf("google speech recognize failed: %w", err)
		}
		results = resp.GetResults()
	} else {
		resp, err := g.client.longRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{Config: recognitionConfig, Audio: audio})
		if err != nil {
			return "", fmt.Errorf("google speech long running recognize failed: %w", err)
		}
		results = resp.GetResults()
	}

	transcript := joinTranscripts(results)
	if transcript == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}

	g.logger.Debug("Google transcription completed", zap.Int("results", len(results)))
	return transcript, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func joinTranscripts(results []*speechpb.SpeechRecognitionResult) string {
	var parts []string
	for _, result := range results {
		if alternatives := result.GetAlternatives(); len(alternatives) > 0 {
			if text := strings.TrimSpace(alternatives[0].GetTranscript()); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// decodeMP3 returns 16-bit little-endian stereo PCM and its sample rate
func decodeMP3(data []byte) ([]byte, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read mp3 frames: %w", err)
	}
	return pcm, decoder.SampleRate(), nil
}

func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS", "OGG":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
