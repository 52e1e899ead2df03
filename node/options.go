package node

import (
	"context"
	"time"

	"peer-node/message"
	"peer-node/peer"
	"peer-node/transport/tcp"

	"github.com/pkg/errors"
)

type Options struct {
	// Port to listen on. 0 lets the transport pick one; ID reflects it once Run has bound.
	Port uint16
	// Host other peers reach this node at. Empty means HostResolver decides.
	Host string
	// ListenHost is the interface to bind. Empty means every interface.
	ListenHost string

	// Debug lets debug records through to the logger's handler.
	Debug bool

	// AcceptTimeout bounds each wait for an inbound connection.
	AcceptTimeout time.Duration
	// DialTimeout bounds outbound dials. 0 means none.
	DialTimeout time.Duration
	// ReadTimeout and WriteTimeout bound each receive and send. 0 means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxConcurrentConns caps inbound connections served at once. 0 means no cap.
	MaxConcurrentConns int64
	// LivenessParallelism is how many peers are probed at once.
	LivenessParallelism int

	Decode   message.DecodeOptions
	Dispatch DispatchOptions

	// HostResolver finds the advertised host when Host is empty.
	HostResolver func(ctx context.Context) (string, error)

	// Metrics to report to. nil means a private, unexposed set.
	Metrics *Metrics
}

type DispatchOptions struct {
	// FoldCase upper-cases inbound tags before looking up their handler.
	FoldCase bool
}

var DefaultOptions = Options{
	AcceptTimeout:       2 * time.Second,
	LivenessParallelism: 1,
	Decode:              message.DefaultDecodeOptions,
	HostResolver: func(ctx context.Context) (string, error) {
		return tcp.OutboundHost(ctx, "")
	},
}

func (o *Options) applyDefaults() {
	if o.AcceptTimeout == 0 {
		o.AcceptTimeout = DefaultOptions.AcceptTimeout
	}
	if o.LivenessParallelism == 0 {
		o.LivenessParallelism = DefaultOptions.LivenessParallelism
	}
	if o.Decode.ReadChunkSize == 0 {
		o.Decode.ReadChunkSize = DefaultOptions.Decode.ReadChunkSize
	}
	if o.HostResolver == nil {
		o.HostResolver = DefaultOptions.HostResolver
	}
}

func (o Options) validate() error {
	switch {
	case o.AcceptTimeout < 0:
		return errors.New("accept timeout must not be negative")
	case o.DialTimeout < 0, o.ReadTimeout < 0, o.WriteTimeout < 0:
		return errors.New("timeouts must not be negative")
	case o.MaxConcurrentConns < 0:
		return errors.New("max concurrent conns must not be negative")
	case o.LivenessParallelism < 0:
		return errors.New("liveness parallelism must not be negative")
	}
	return nil
}

func (o Options) peerOptions() peer.Options {
	return peer.Options{
		Decode:       o.Decode,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	}
}
