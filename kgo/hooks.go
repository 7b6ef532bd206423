package kgo

import (
	"net"
	"time"
)

// Hook is the empty marker interface implemented by every hook kind below.
// A caller implements whichever of the typed interfaces it needs; unused
// hook kinds are simply not asserted by the call sites below (spec §9
// design notes: extension points stay function-shaped capabilities, not an
// inheritance hierarchy).
type Hook interface{}

// BrokerConnectHook fires after a broker connection attempt completes (or
// fails), mirroring the teacher's connection-lifecycle hook.
type BrokerConnectHook interface {
	OnConnect(meta BrokerDescriptor, dialDuration time.Duration, conn net.Conn, err error)
}

// BrokerDisconnectHook fires when a broker connection is closed.
type BrokerDisconnectHook interface {
	OnDisconnect(meta BrokerDescriptor, conn net.Conn)
}

// BrokerWriteHook fires after a request is written to a broker connection.
type BrokerWriteHook interface {
	OnWrite(meta BrokerDescriptor, key int16, bytesWritten int, writeWait, timeToWrite time.Duration, err error)
}

// BrokerReadHook fires after a response is read from a broker connection.
type BrokerReadHook interface {
	OnRead(meta BrokerDescriptor, key int16, bytesRead int, readWait, timeToRead time.Duration, err error)
}

// BrokerThrottleHook fires when a response indicates the broker throttled
// this client.
type BrokerThrottleHook interface {
	OnThrottle(meta BrokerDescriptor, throttleDuration time.Duration)
}

type hooks []Hook

func (hs hooks) each(fn func(Hook)) {
	for _, h := range hs {
		fn(h)
	}
}

// WithHooks registers observers for broker connection lifecycle events.
func WithHooks(hs ...Hook) Opt {
	return opt{func(c *cfg) { c.hookList = append(c.hookList, hs...) }}
}
