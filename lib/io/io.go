package iolib

import (
	"io"
)

func WriteFull(w io.Writer, buf []byte) (uint, error) {
	total := uint(0)
	for total < uint(len(buf)) {
		n, err := w.Write(buf[total:])
		total += uint(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFull reads exactly len(buf) bytes, tolerating short reads.
// Unlike [io.ReadFull] it returns the reader's error untouched,
// so the caller decides what a short read means.
func ReadFull(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// DefaultReadChunk is what ReadN requests per read when given no chunk size.
const DefaultReadChunk = 2048

// ReadN reads exactly n bytes, at most chunk bytes per read.
// The result grows with what actually arrived rather than with n,
// so a bogus length does not cost a huge allocation up front.
// On error the bytes read so far are returned.
func ReadN(r io.Reader, n uint32, chunk int) ([]byte, error) {
	if chunk <= 0 {
		chunk = DefaultReadChunk
	}

	buf := make([]byte, 0, min(int(n), chunk))
	for uint32(len(buf)) < n {
		want := min(int(n-uint32(len(buf))), chunk)
		if cap(buf)-len(buf) < want {
			grown := make([]byte, len(buf), len(buf)+max(want, len(buf)))
			copy(grown, buf)
			buf = grown
		}

		got, err := ReadFull(r, buf[len(buf):len(buf)+want])
		buf = buf[:len(buf)+got]
		if err != nil {
			return buf, err
		}
	}

	return buf, nil
}
