package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Container identifies a supported input format.
type Container int

const (
	ContainerUnknown Container = iota
	ContainerOgg
	ContainerWAV
)

// ErrUnsupportedFormat is returned by Decode for inputs other than OGG/Opus
// and 16-bit PCM WAV.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Sniff identifies the container from the first bytes of a file.
func Sniff(header []byte) Container {
	switch {
	case bytes.HasPrefix(header, []byte("OggS")):
		return ContainerOgg
	case len(header) >= 12 && bytes.HasPrefix(header, []byte("RIFF")) && string(header[8:12]) == "WAVE":
		return ContainerWAV
	}
	return ContainerUnknown
}

// Decode reads an OGG/Opus voice note or a WAV file and returns 16 kHz mono
// 16-bit little-endian PCM.
func Decode(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("audio: read input: %w", err)
	}

	var (
		pcm    []byte
		format pcmFormat
	)
	switch Sniff(data) {
	case ContainerOgg:
		pcm, format, err = decodeOggOpus(bytes.NewReader(data))
	case ContainerWAV:
		pcm, format, err = parseWAV(data)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, err
	}

	pcm = DownmixMono(pcm, format.channels)
	return ResampleMono16(pcm, format.sampleRate, SampleRate), nil
}
