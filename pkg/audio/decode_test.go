package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"slices"
	"testing"

	"layeh.com/gopus"
)

// oggPage builds one OGG page. Packets longer than 255 bytes are laced
// across multiple segments; continued marks the first packet as the
// continuation of one from the previous page, and open leaves the last
// packet unterminated.
func oggPage(serial, seq uint32, headerType byte, packets [][]byte, open bool) []byte {
	var (
		lacing []byte
		body   []byte
	)
	for i, p := range packets {
		n := len(p)
		for n >= 255 {
			lacing = append(lacing, 255)
			n -= 255
		}
		if !(open && i == len(packets)-1) {
			lacing = append(lacing, byte(n))
		}
		body = append(body, p...)
	}

	hdr := make([]byte, oggHeaderSize)
	copy(hdr, "OggS")
	hdr[5] = headerType
	binary.LittleEndian.PutUint32(hdr[14:], serial)
	binary.LittleEndian.PutUint32(hdr[18:], seq)
	hdr[26] = byte(len(lacing))

	page := append(hdr, lacing...)
	return append(page, body...)
}

func TestOggReader_Packets(t *testing.T) {
	t.Parallel()

	long := bytes.Repeat([]byte{0xAB}, 600)
	var stream []byte
	stream = append(stream, oggPage(7, 0, 0x02, [][]byte{[]byte("first")}, false)...)
	// A page from another logical stream is ignored.
	stream = append(stream, oggPage(9, 0, 0x02, [][]byte{[]byte("other")}, false)...)
	// long spans two pages: 510 bytes here, 90 on the continuation page.
	stream = append(stream, oggPage(7, 1, 0, [][]byte{[]byte("second"), long[:510]}, true)...)
	stream = append(stream, oggPage(7, 2, 0x01|0x04, [][]byte{long[510:]}, false)...)

	r := newOggReader(bytes.NewReader(stream))
	var got [][]byte
	for {
		p, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, p)
	}

	if len(got) != 3 {
		t.Fatalf("got %d packets, want 3", len(got))
	}
	if string(got[0]) != "first" || string(got[1]) != "second" || !bytes.Equal(got[2], long) {
		t.Errorf("packets = %q, %q, %d bytes", got[0], got[1], len(got[2]))
	}
}

func TestOggReader_BadInput(t *testing.T) {
	t.Parallel()

	if _, err := newOggReader(bytes.NewReader([]byte("NotOgg at all, really not"))).next(); err == nil {
		t.Error("expected error for bad capture pattern")
	}
	if _, err := newOggReader(bytes.NewReader(nil)).next(); err == nil {
		t.Error("expected error for empty stream")
	}
}

func opusHeadPacket(channels byte, preSkip uint16) []byte {
	p := make([]byte, 19)
	copy(p, "OpusHead")
	p[8] = 1
	p[9] = channels
	binary.LittleEndian.PutUint16(p[10:], preSkip)
	binary.LittleEndian.PutUint32(p[12:], 48000)
	return p
}

func TestDecode_OggOpus(t *testing.T) {
	t.Parallel()

	const (
		frameSize = 960 // 20 ms at 48 kHz
		frames    = 50  // 1 s
		preSkip   = 312
	)
	enc, err := gopus.NewEncoder(opusSampleRate, 1, gopus.Voip)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	stream := oggPage(1, 0, 0x02, [][]byte{opusHeadPacket(1, preSkip)}, false)
	stream = append(stream, oggPage(1, 1, 0, [][]byte{[]byte("OpusTags")}, false)...)
	for i := range frames {
		pcm := make([]int16, frameSize)
		for j := range pcm {
			n := i*frameSize + j
			pcm[j] = int16(8000 * math.Sin(2*math.Pi*440*float64(n)/opusSampleRate))
		}
		packet, err := enc.Encode(pcm, frameSize, 4000)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		var headerType byte
		if i == frames-1 {
			headerType = 0x04
		}
		stream = append(stream, oggPage(1, uint32(i+2), headerType, [][]byte{packet}, false)...)
	}

	pcm, err := Decode(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := (frames*frameSize - preSkip) / 3
	if got := len(pcm) / 2; got < want-2 || got > want+2 {
		t.Errorf("decoded %d samples at 16 kHz, want about %d", got, want)
	}
	if slices.Max(bytesToSamples(pcm)) < 1000 {
		t.Error("decoded audio is silent")
	}
}

func TestDecode_WAVConvertsToMono16k(t *testing.T) {
	t.Parallel()

	stereo48k := make([]int16, 4800*2) // 100 ms
	for i := range stereo48k {
		stereo48k[i] = 1000
	}
	pcm, err := Decode(bytes.NewReader(EncodeWAV(samplesToBytes(stereo48k), 48000, 2)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	samples := bytesToSamples(pcm)
	if len(samples) != 1600 {
		t.Fatalf("got %d samples, want 1600", len(samples))
	}
	if samples[0] != 1000 || samples[len(samples)-1] != 1000 {
		t.Errorf("unexpected sample values %d..%d", samples[0], samples[len(samples)-1])
	}
}

func TestDecode_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := Decode(bytes.NewReader([]byte("ID3\x04\x00 mp3 data")))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}
