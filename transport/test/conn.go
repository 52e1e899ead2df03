// Package test holds a suite every [transport.Conn] implementation is run against.
package test

import (
	"bytes"
	"io"
	"sync"
	"time"

	"peer-node/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// ConnTestSuite expects C1 and C2 to be two ends of one connection,
// set by the embedding suite's SetupTest after calling this one's.
type ConnTestSuite struct {
	suite.Suite
	C1, C2 transport.Conn
	Clock  clock.Clock
}

func (s *ConnTestSuite) SetupTest() {
	s.Clock = clock.New()
}

func (s *ConnTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.NoError(s.C1.Close())
	s.NoError(s.C2.Close())
}

// within fails the test if fn does not return in a second.
func (s *ConnTestSuite) within(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.FailNow("timeout exceeded")
	}
}

func (s *ConnTestSuite) TestReadWrite() {
	data := []byte("Hello, World!")

	s.within(func() {
		var wg sync.WaitGroup
		defer wg.Wait()
		wg.Add(1)

		go func() {
			defer wg.Done()
			n, err := s.C1.Write(data)
			s.NoError(err)
			s.Equal(len(data), n)
		}()

		buf := make([]byte, 10)

		n, err := s.C2.Read(buf)
		s.Require().NoError(err)
		s.Equal(len(buf), n)
		s.Equal(data[:n], buf)

		n, err = s.C2.Read(buf)
		s.Require().NoError(err)
		s.Equal(len(data)-len(buf), n)
		s.Equal(data[len(buf):], buf[:n])
	})
}

// Frames are read in pieces; every byte must arrive in order.
func (s *ConnTestSuite) TestReadFullInPieces() {
	data := bytes.Repeat([]byte("0123456789"), 50)

	s.within(func() {
		var wg sync.WaitGroup
		defer wg.Wait()
		wg.Add(1)

		go func() {
			defer wg.Done()
			_, err := s.C1.Write(data)
			s.NoError(err)
		}()

		got := make([]byte, len(data))
		_, err := io.ReadFull(s.C2, got)
		s.Require().NoError(err)
		s.Equal(data, got)
	})
}

func (s *ConnTestSuite) TestWriteRace() {
	data := []byte("ABCD")
	N := 10

	s.within(func() {
		var wg sync.WaitGroup
		defer wg.Wait()

		wg.Add(1)
		go func() {
			defer wg.Done()
			var wwg sync.WaitGroup
			for range N {
				wwg.Add(1)
				go func() {
					defer wwg.Done()
					n, err := s.C1.Write(data)
					s.NoError(err)
					s.Equal(len(data), n)
				}()
			}
			wwg.Wait()
			s.NoError(s.C1.Close())
		}()

		result := make([]byte, 0)
		b := make([]byte, 10)
		for {
			n, err := s.C2.Read(b)
			if err != nil {
				s.Require().ErrorIs(err, transport.ErrConnClosed)
				break
			}
			result = append(result, b[:n]...)
		}

		s.Equal(bytes.Repeat(data, N), result)
	})
}

func (s *ConnTestSuite) TestClose() {
	tryReadWrite := func(conn transport.Conn) {
		buf := make([]byte, 10)

		n, err := conn.Read(buf)
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)

		n, err = conn.Write(buf)
		s.ErrorIs(err, transport.ErrConnClosed)
		s.Zero(n)
	}

	s.within(func() {
		s.Require().NoError(s.C1.Close())

		tryReadWrite(s.C1)
		tryReadWrite(s.C2)
	})
}

func (s *ConnTestSuite) TestCloseTwice() {
	s.NoError(s.C1.Close())
	s.NoError(s.C1.Close())
}

func (s *ConnTestSuite) TestReadBeforeClose() {
	s.within(func() {
		var wg sync.WaitGroup
		defer wg.Wait()

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.C1.Read(make([]byte, 1))
			s.ErrorIs(err, transport.ErrConnClosed)
		}()

		time.Sleep(50 * time.Millisecond)
		s.Require().NoError(s.C2.Close())
	})
}

func (s *ConnTestSuite) TestReadDeadLine() {
	s.C1.SetReadDeadLine(s.Clock.Now().Add(-time.Second))

	n, err := s.C1.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)

	// Clearing the deadline makes the conn usable again.
	s.C1.SetReadDeadLine(time.Time{})

	s.within(func() {
		go func() { _, _ = s.C2.Write([]byte{1}) }()
		n, err := s.C1.Read(make([]byte, 1))
		s.NoError(err)
		s.Equal(1, n)
	})
}

func (s *ConnTestSuite) TestReadDeadLineWhileBlocked() {
	s.within(func() {
		s.C1.SetReadDeadLine(s.Clock.Now().Add(30 * time.Millisecond))

		n, err := s.C1.Read(make([]byte, 1))
		s.ErrorIs(err, transport.ErrDeadLineExceeded)
		s.Zero(n)
	})
}

func (s *ConnTestSuite) TestWriteDeadLine() {
	s.C1.SetWriteDeadLine(s.Clock.Now().Add(-time.Second))

	n, err := s.C1.Write(make([]byte, 1))
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.Zero(n)
}

func (s *ConnTestSuite) TestAddr() {
	local1, remote1 := s.C1.LocalAddr(), s.C1.RemoteAddr()
	local2, remote2 := s.C2.LocalAddr(), s.C2.RemoteAddr()

	s.Equal(local1, remote2)
	s.Equal(local2, remote1)
}
