package message

import (
	"encoding/binary"
	"io"

	iolib "peer-node/lib/io"
	"peer-node/transport"

	"github.com/pkg/errors"
)

// ErrShortRead means the stream ended in the middle of a frame.
// Whatever was read of that frame must be discarded.
var ErrShortRead = errors.New("stream ended inside a frame")

type DecodeOptions struct {
	// MaxPayloadLen rejects frames declaring a longer payload. 0 means no limit.
	MaxPayloadLen uint32

	// ReadChunkSize caps the bytes requested per read while collecting a payload.
	// 0 means iolib.DefaultReadChunk.
	ReadChunkSize int
}

var DefaultDecodeOptions = DecodeOptions{
	MaxPayloadLen: 0,
	ReadChunkSize: iolib.DefaultReadChunk,
}

type Decoder struct {
	r    io.Reader
	opts DecodeOptions
}

func NewDecoder(r io.Reader, opts DecodeOptions) *Decoder {
	return &Decoder{r: r, opts: opts}
}

// Decode reads the next frame.
//
// It returns [io.EOF] when the stream ended cleanly before a new frame started,
// and an error wrapping [ErrShortRead] when it ended inside one.
// Transport errors other than the stream ending are returned wrapped.
func (d *Decoder) Decode() (Message, error) {
	var header [HeaderLen]byte

	n, err := iolib.ReadFull(d.r, header[:TypeLen])
	if err != nil {
		if isEnd(err) && n == 0 {
			return Message{}, io.EOF
		}
		return Message{}, d.readErr(err, "type", TypeLen-n)
	}

	n, err = iolib.ReadFull(d.r, header[TypeLen:])
	if err != nil {
		return Message{}, d.readErr(err, "length", LengthLen-n)
	}

	var m Message
	copy(m.Type[:], header[:TypeLen])
	length := binary.BigEndian.Uint32(header[TypeLen:])

	if limit := d.opts.MaxPayloadLen; limit > 0 && length > limit {
		return Message{}, errors.Wrapf(ErrPayloadTooLarge, "%s declares %d bytes, limit is %d", m.Type, length, limit)
	}

	payload, err := iolib.ReadN(d.r, length, d.opts.ReadChunkSize)
	if err != nil {
		return Message{}, d.readErr(err, "payload", int(length)-len(payload))
	}
	m.Payload = payload

	return m, nil
}

func (d *Decoder) readErr(err error, field string, missing int) error {
	if isEnd(err) {
		return errors.Wrapf(ErrShortRead, "%d bytes of %s missing", missing, field)
	}
	return errors.Wrapf(err, "reading %s", field)
}

func isEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, transport.ErrConnClosed)
}
