package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"layeh.com/gopus"
)

const (
	// Opus always decodes at 48 kHz.
	opusSampleRate = 48000

	// opusMaxFrameSize is the largest frame (120 ms at 48 kHz) per channel.
	opusMaxFrameSize = 5760
)

// opusHead is the identification header of an OGG/Opus stream.
type opusHead struct {
	channels int
	preSkip  int
}

func parseOpusHead(p []byte) (opusHead, error) {
	if len(p) < 19 || !bytes.HasPrefix(p, []byte("OpusHead")) {
		return opusHead{}, errors.New("audio: opus: missing OpusHead")
	}
	h := opusHead{
		channels: int(p[9]),
		preSkip:  int(binary.LittleEndian.Uint16(p[10:12])),
	}
	if h.channels < 1 || h.channels > 2 {
		return opusHead{}, fmt.Errorf("audio: opus: unsupported channel count %d", h.channels)
	}
	return h, nil
}

// decodeOggOpus decodes an OGG/Opus stream into 48 kHz interleaved PCM.
func decodeOggOpus(r io.Reader) ([]byte, pcmFormat, error) {
	ogg := newOggReader(r)

	first, err := ogg.next()
	if err != nil {
		return nil, pcmFormat{}, err
	}
	head, err := parseOpusHead(first)
	if err != nil {
		return nil, pcmFormat{}, err
	}
	// The comment header is not needed.
	if _, err := ogg.next(); err != nil {
		return nil, pcmFormat{}, fmt.Errorf("audio: opus: read tags: %w", err)
	}

	dec, err := gopus.NewDecoder(opusSampleRate, head.channels)
	if err != nil {
		return nil, pcmFormat{}, fmt.Errorf("audio: opus: create decoder: %w", err)
	}

	var (
		out  []byte
		skip = head.preSkip
	)
	for {
		packet, err := ogg.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, pcmFormat{}, err
		}
		if len(packet) == 0 {
			continue
		}
		pcm, err := dec.Decode(packet, opusMaxFrameSize, false)
		if err != nil {
			return nil, pcmFormat{}, fmt.Errorf("audio: opus: decode: %w", err)
		}
		frames := len(pcm) / head.channels
		if skip > 0 {
			n := min(skip, frames)
			pcm = pcm[n*head.channels:]
			skip -= n
		}
		out = appendInt16s(out, pcm)
	}
	return out, pcmFormat{sampleRate: opusSampleRate, channels: head.channels}, nil
}

func appendInt16s(b []byte, pcm []int16) []byte {
	for _, s := range pcm {
		b = binary.LittleEndian.AppendUint16(b, uint16(s))
	}
	return b
}
