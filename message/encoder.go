package message

import (
	"encoding/binary"
	"io"
	"math"

	iolib "peer-node/lib/io"

	"github.com/pkg/errors"
)

var ErrPayloadTooLarge = errors.New("payload too large")

// Encode returns the frame for t and payload.
// It panics if payload does not fit in a uint32 length.
func Encode(t Type, payload []byte) []byte {
	b, err := AppendFrame(make([]byte, 0, HeaderLen+len(payload)), t, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// AppendFrame appends the frame for t and payload to b.
func AppendFrame(b []byte, t Type, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return b, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(payload))
	}

	b = append(b, t[:]...)
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	b = append(b, payload...)
	return b, nil
}

type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes a whole frame with a single buffered write,
// so a writer that serializes its writes never interleaves two frames.
func (e *Encoder) Encode(m Message) error {
	frame, err := AppendFrame(nil, m.Type, m.Payload)
	if err != nil {
		return err
	}

	if _, err := iolib.WriteFull(e.w, frame); err != nil {
		return errors.Wrap(err, "writing frame")
	}
	return nil
}
