package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// pcmFormat is the layout of a decoded PCM stream.
type pcmFormat struct {
	sampleRate int
	channels   int
}

// parseWAV extracts the 16-bit PCM payload and format of a RIFF/WAV file.
// Chunks other than "fmt " and "data" are skipped.
func parseWAV(b []byte) ([]byte, pcmFormat, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, pcmFormat{}, errors.New("audio: wav: missing RIFF/WAVE header")
	}

	var (
		format  pcmFormat
		haveFmt bool
	)
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(b) {
			// A data chunk may declare more bytes than remain.
			if id != "data" {
				return nil, pcmFormat{}, fmt.Errorf("audio: wav: truncated %q chunk", id)
			}
			size = len(b) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, pcmFormat{}, errors.New("audio: wav: short fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(b[body:])
			bits := binary.LittleEndian.Uint16(b[body+14:])
			if (audioFormat != 1 && audioFormat != 0xFFFE) || bits != bitsPerSample {
				return nil, pcmFormat{}, fmt.Errorf("audio: wav: unsupported encoding (format %d, %d bits)", audioFormat, bits)
			}
			format.channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			format.sampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, pcmFormat{}, errors.New("audio: wav: data before fmt chunk")
			}
			return b[body : body+size], format, nil
		}
		// Chunks are word aligned.
		off = body + size + size%2
	}
	return nil, pcmFormat{}, errors.New("audio: wav: no data chunk")
}
