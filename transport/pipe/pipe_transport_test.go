package pipe

import (
	"context"
	"testing"
	"time"

	"peer-node/transport"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type PipeTransportTestSuite struct {
	suite.Suite

	transport *PipeTransport
	addr      transport.Addr
}

func TestPipeTransportTestSuite(t *testing.T) {
	suite.Run(t, new(PipeTransportTestSuite))
}

func (s *PipeTransportTestSuite) SetupTest() {
	s.transport = NewPipeTransport(clock.New())
	s.addr = transport.Addr{Host: "hey", Port: 5000}
}

func (s *PipeTransportTestSuite) TearDownTest() {
	goleak.VerifyNone(s.T())
}

func (s *PipeTransportTestSuite) TestListen() {
	lis, err := s.transport.Listen(context.Background(), s.addr)
	s.Require().NoError(err)
	s.Require().NotNil(lis)
	s.Equal(s.addr, lis.Addr())

	got, ok := s.transport.listeners[s.addr]
	s.True(ok)
	s.Equal(lis, got)

	again, err := s.transport.Listen(context.Background(), s.addr)
	s.ErrorIs(err, transport.ErrAddrAlreadyInUse)
	s.Nil(again)

	s.NoError(lis.Close())
}

func (s *PipeTransportTestSuite) TestListenEphemeral() {
	lis, err := s.transport.Listen(context.Background(), transport.Addr{})
	s.Require().NoError(err)
	defer lis.Close()

	s.Equal("pipe", lis.Addr().Host)
	s.NotZero(lis.Addr().Port)
}

func (s *PipeTransportTestSuite) TestDial() {
	lis, err := s.transport.Listen(context.Background(), s.addr)
	s.Require().NoError(err)
	defer lis.Close()

	accepted := make(chan transport.Conn, 1)
	go func() {
		conn, err := lis.Accept(context.Background())
		s.NoError(err)
		accepted <- conn
	}()

	conn, err := s.transport.Dial(context.Background(), s.addr)
	s.Require().NoError(err)
	s.Require().NotNil(conn)
	s.Equal(s.addr, conn.RemoteAddr())

	server := <-accepted
	s.Equal(conn.LocalAddr(), server.RemoteAddr())

	s.NoError(conn.Close())
	s.NoError(server.Close())
}

func (s *PipeTransportTestSuite) TestDialReleasesPort() {
	lis, err := s.transport.Listen(context.Background(), s.addr)
	s.Require().NoError(err)
	defer lis.Close()

	go func() {
		conn, err := lis.Accept(context.Background())
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := s.transport.Dial(context.Background(), s.addr)
	s.Require().NoError(err)
	s.Equal(2, s.transport.ports.Occupied())

	s.NoError(conn.Close())
	s.Equal(1, s.transport.ports.Occupied())
}

func (s *PipeTransportTestSuite) TestDialUnreachable() {
	conn, err := s.transport.Dial(context.Background(), s.addr)
	s.ErrorIs(err, transport.ErrNetUnreachable)
	s.Nil(conn)
}

func (s *PipeTransportTestSuite) TestDialCancels() {
	lis, err := s.transport.Listen(context.Background(), s.addr)
	s.Require().NoError(err)
	defer lis.Close()

	// Nobody accepts.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	conn, err := s.transport.Dial(ctx, s.addr)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Nil(conn)
	s.Equal(1, s.transport.ports.Occupied())
}

func (s *PipeTransportTestSuite) TestDialClosedListener() {
	lis, err := s.transport.Listen(context.Background(), s.addr)
	s.Require().NoError(err)
	s.Require().NoError(lis.Close())

	conn, err := s.transport.Dial(context.Background(), s.addr)
	s.ErrorIs(err, transport.ErrNetUnreachable)
	s.Nil(conn)
}

type PipeListenerTestSuite struct {
	suite.Suite

	transport *PipeTransport
	pl        *pipeListener
}

func TestPipeListenerTestSuite(t *testing.T) {
	suite.Run(t, new(PipeListenerTestSuite))
}

func (s *PipeListenerTestSuite) SetupTest() {
	s.transport = NewPipeTransport(clock.New())

	lis, err := s.transport.Listen(context.Background(), transport.Addr{Host: "hey", Port: 1})
	s.Require().NoError(err)
	s.pl = lis.(*pipeListener)
}

func (s *PipeListenerTestSuite) TestAccept() {
	_, p2 := Pipe(transport.Addr{Host: "dialer"}, s.pl.addr, s.transport.clock)

	done := make(chan struct{})
	go func() {
		defer close(done)

		req := pipeRequest{conn: p2, accepted: make(chan struct{}, 1)}
		s.pl.requests <- req

		_, ok := <-req.accepted
		s.True(ok)
	}()

	conn, err := s.pl.Accept(context.Background())
	s.Equal(p2, conn)
	s.NoError(err)
	<-done
}

func (s *PipeListenerTestSuite) TestAcceptCancels() {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	conn, err := s.pl.Accept(ctx)
	s.Nil(conn)
	s.ErrorIs(err, context.Canceled)
}

func (s *PipeListenerTestSuite) TestAcceptAfterClose() {
	s.Require().NoError(s.pl.Close())

	conn, err := s.pl.Accept(context.Background())
	s.Nil(conn)
	s.ErrorIs(err, transport.ErrConnListenerClosed)
}

func (s *PipeListenerTestSuite) TestClose() {
	s.Require().NoError(s.pl.Close())

	<-s.pl.closed

	s.ErrorIs(s.pl.Close(), transport.ErrConnListenerClosed)

	listener, ok := s.transport.listeners[s.pl.addr]
	s.False(ok)
	s.Nil(listener)
	s.Zero(s.transport.ports.Occupied())
}
