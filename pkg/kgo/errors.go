package kgo

import (
	"errors"
	"io"
	"net"

	"github.com/twmb/kreq/pkg/kerr"
)

// Local errors this package fabricates for conditions the broker never
// reports: a dead broker, an API key outside what this client or the
// broker understands, a connection that failed outright.
var (
	ErrBrokerDead         = errors.New("the broker this client was provided has died--is the client closed?")
	ErrUnknownRequestKey  = errors.New("request key is unknown")
	ErrBrokerTooOld       = errors.New("broker appears to be too old to handle the request")
	ErrNoDial             = errors.New("unable to dial the broker")
	ErrConnDead           = errors.New("connection is dead")
	ErrCorrelationIDMismatch = errors.New("received response with an unexpected correlation id")
)

// classifyConnErr maps a raw net/io error from a connection read or write
// into the kerr.Transport local pseudo-error, so the rest of the engine
// (classify.go's default table) can treat every flavor of broken pipe,
// reset connection, and unexpected EOF uniformly as a retriable
// transport failure.
func classifyConnErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return kerr.Transport
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return kerr.Transport
	}
	return err
}
