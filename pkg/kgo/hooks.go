package kgo

import (
	"net"
	"time"
)

// Hook is the base type of every hook this package fires. A config may
// register any number of hooks; each is checked for the narrower
// interfaces below and invoked if it implements one.
type Hook interface{}

// BrokerConnectHook is called after every attempt to open a broker
// connection, successful or not.
type BrokerConnectHook interface {
	OnConnect(meta BrokerMetadata, dialDur time.Duration, conn net.Conn, err error)
}

// BrokerDisconnectHook is called after a broker connection is torn down.
type BrokerDisconnectHook interface {
	OnDisconnect(meta BrokerMetadata, conn net.Conn)
}

// BrokerWriteHook is called after every request write to a broker
// connection, successful or not.
type BrokerWriteHook interface {
	OnWrite(meta BrokerMetadata, key int16, bytesWritten int, err error)
}

// BrokerReadHook is called after every response read from a broker
// connection, successful or not.
type BrokerReadHook interface {
	OnRead(meta BrokerMetadata, bytesRead int, err error)
}

// BrokerThrottleHook is called whenever a response carries a nonzero
// throttle_time_ms, satisfying kreq.ThrottleObserver's concern at the
// connection layer.
type BrokerThrottleHook interface {
	OnThrottle(meta BrokerMetadata, throttleMs int32)
}

// hooks is an ordered list of registered Hook values, dispatched via each.
type hooks []Hook

func (hs hooks) each(fn func(Hook)) {
	for _, h := range hs {
		fn(h)
	}
}
