package message

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

const (
	TypeLen   = 4
	LengthLen = 4
	HeaderLen = TypeLen + LengthLen
)

// Type is the fixed-width tag naming what a frame carries.
type Type [TypeLen]byte

var ErrInvalidType = errors.New("message type must be exactly 4 bytes")

func NewType(s string) (Type, error) {
	var t Type
	if len(s) != TypeLen {
		return t, errors.Wrapf(ErrInvalidType, "got %q", s)
	}
	copy(t[:], s)
	return t, nil
}

// MustType is like [NewType] but panics. Meant for package level tags.
func MustType(s string) Type {
	t, err := NewType(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Type) String() string {
	if isPrintable(t[:]) {
		return string(t[:])
	}
	return strconv.Quote(string(t[:]))
}

// Upper returns t with ASCII letters upper-cased.
func (t Type) Upper() Type {
	for i, c := range t {
		if 'a' <= c && c <= 'z' {
			t[i] = c - ('a' - 'A')
		}
	}
	return t
}

// TypeEndOfReplies terminates a reply sequence without closing the connection.
// The leading zero byte keeps it out of the printable tags applications use.
var TypeEndOfReplies = Type{0, 'E', 'O', 'R'}

type Message struct {
	Type    Type
	Payload []byte
}

func (m Message) String() string {
	return fmt.Sprintf("%s (%d bytes)", m.Type, len(m.Payload))
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
