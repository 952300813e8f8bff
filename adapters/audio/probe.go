package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

var errUnsupportedContainer = errors.New("unsupported container for native probe")

// nativeDuration decodes the container headers in process. Ogg/Opus voice
// notes are not covered and fall back to ffprobe.
func nativeDuration(data []byte) (float64, error) {
	switch sniff(data) {
	case "wav":
		dec := wav.NewDecoder(bytes.NewReader(data))
		if !dec.IsValidFile() {
			return 0, errors.New("invalid wav")
		}
		d, err := dec.Duration()
		if err != nil {
			return 0, fmt.Errorf("wav duration: %w", err)
		}
		return d.Seconds(), nil

	case "ogg":
		length, format, err := oggvorbis.GetLength(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("ogg/vorbis duration: %w", err)
		}
		if format == nil || format.SampleRate <= 0 {
			return 0, errors.New("invalid ogg/vorbis stream")
		}
		return float64(length) / float64(format.SampleRate), nil

	case "mp3":
		dec, err := mp3.NewDecoder(bytes.NewReader(data))
		if err != nil {
			return 0, fmt.Errorf("mp3 decode: %w", err)
		}
		if dec.SampleRate() <= 0 {
			return 0, errors.New("invalid mp3 stream")
		}
		// decoder output is 16-bit stereo
		frames := dec.Length() / 4
		return (time.Duration(frames) * time.Second / time.Duration(dec.SampleRate())).Seconds(), nil
	}
	return 0, errUnsupportedContainer
}

func sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}
