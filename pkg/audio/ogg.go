package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const oggHeaderSize = 27

// oggReader splits an OGG bitstream into packets. Only the first logical
// stream is read, which is all a voice note contains. Page CRCs are not
// verified.
type oggReader struct {
	r       *bufio.Reader
	serial  uint32
	started bool

	pending []byte   // partial packet continued on the next page
	packets [][]byte // complete packets of the current page
	eos     bool
}

func newOggReader(r io.Reader) *oggReader {
	return &oggReader{r: bufio.NewReader(r)}
}

// next returns the next packet, or io.EOF after the last one.
func (o *oggReader) next() ([]byte, error) {
	for len(o.packets) == 0 {
		if o.eos {
			return nil, io.EOF
		}
		if err := o.readPage(); err != nil {
			return nil, err
		}
	}
	p := o.packets[0]
	o.packets = o.packets[1:]
	return p, nil
}

func (o *oggReader) readPage() error {
	var hdr [oggHeaderSize]byte
	if _, err := io.ReadFull(o.r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) && o.started {
			o.eos = true
			return nil
		}
		return fmt.Errorf("audio: ogg: read page header: %w", err)
	}
	if string(hdr[0:4]) != "OggS" {
		return errors.New("audio: ogg: bad capture pattern")
	}
	if hdr[4] != 0 {
		return fmt.Errorf("audio: ogg: unsupported version %d", hdr[4])
	}
	headerType := hdr[5]
	serial := binary.LittleEndian.Uint32(hdr[14:18])

	lacing := make([]byte, hdr[26])
	if _, err := io.ReadFull(o.r, lacing); err != nil {
		return fmt.Errorf("audio: ogg: read segment table: %w", err)
	}
	total := 0
	for _, l := range lacing {
		total += int(l)
	}
	body := make([]byte, total)
	if _, err := io.ReadFull(o.r, body); err != nil {
		return fmt.Errorf("audio: ogg: read page body: %w", err)
	}

	if !o.started {
		o.serial = serial
		o.started = true
	}
	if serial != o.serial {
		return nil
	}
	if headerType&0x01 == 0 {
		o.pending = nil
	}

	off := 0
	for _, l := range lacing {
		o.pending = append(o.pending, body[off:off+int(l)]...)
		off += int(l)
		if l < 255 {
			o.packets = append(o.packets, o.pending)
			o.pending = nil
		}
	}
	if headerType&0x04 != 0 {
		o.eos = true
	}
	return nil
}
