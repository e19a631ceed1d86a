package witness

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/juju/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// headerLen is the size of the big-endian length prefix.
	headerLen = 4

	// frameSize is the pooled buffer size. An encoded Interval is a few
	// dozen bytes, so every frame fits.
	frameSize = 256

	// maxFrame guards Decode against reading garbage as a huge length.
	maxFrame = 1 << 16

	// ErrFrameTooLarge is returned by Decode for a length prefix above
	// maxFrame, which only happens when the file is not a journal.
	ErrFrameTooLarge = errors.ConstError("witness frame too large")
)

var frames = newFramePool(frameSize, 16)

// Encoder writes length-prefixed MessagePack frames.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes iv as one frame with a single Write call.
func (e *Encoder) Encode(iv Interval) error {
	b := bytes.NewBuffer(frames.get()[:headerLen])
	if err := msgpack.NewEncoder(b).Encode(&iv); err != nil {
		return errors.Annotate(err, "encoding interval")
	}
	frame := b.Bytes()
	binary.BigEndian.PutUint32(frame[:headerLen], uint32(len(frame)-headerLen))

	_, err := e.w.Write(frame)
	frames.put(frame)
	return errors.Trace(err)
}

// Decoder reads frames written by Encoder.
type Decoder struct {
	r      io.Reader
	header [headerLen]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads the next Interval. It returns io.EOF at a clean end of input
// and io.ErrUnexpectedEOF if the input stops inside a frame.
func (d *Decoder) Decode() (Interval, error) {
	if _, err := io.ReadFull(d.r, d.header[:]); err != nil {
		return Interval{}, err
	}
	n := binary.BigEndian.Uint32(d.header[:])
	if n > maxFrame {
		return Interval{}, errors.Annotatef(ErrFrameTooLarge, "%d bytes", n)
	}

	var payload []byte
	if n <= frameSize {
		buf := frames.get()
		defer frames.put(buf)
		payload = buf[:n]
	} else {
		payload = make([]byte, n)
	}
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Interval{}, err
	}

	var iv Interval
	if err := msgpack.Unmarshal(payload, &iv); err != nil {
		return Interval{}, errors.Annotate(err, "decoding interval")
	}
	return iv, nil
}
