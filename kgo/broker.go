package kgo

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dcrodman/kaf/kmsg"
)

// BrokerDescriptor mirrors spec §3: immutable, replaced wholesale on
// metadata refresh.
type BrokerDescriptor struct {
	NodeID int32
	Host   string
	Port   int32
}

func (b BrokerDescriptor) addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port)))
}

// promisedReq is a request enqueued on a broker's reqs channel along with
// the callback to invoke once it either fails or is answered (spec §4.C
// "safe to invoke concurrently; ordering... is arrival order at the send
// queue").
type promisedReq struct {
	ctx     context.Context
	req     kmsg.Request
	promise func(kmsg.Response, error)
}

// promisedResp pairs a correlation ID awaiting its response with the
// promise to resolve once the matching frame arrives.
type promisedResp struct {
	ctx     context.Context
	corrID  int32
	expect  kmsg.Response // zero-valued response of the right kind
	promise func(kmsg.Response, error)
}

// broker manages a client's view of one broker: connection (re)creation,
// in-flight correlation, and least-recently-used bookkeeping for the
// cluster model's tie-breaks (spec §4.D).
type broker struct {
	cl   *Client
	meta BrokerDescriptor

	dieMu sync.RWMutex
	reqs  chan promisedReq
	dead  int32

	cxnMu sync.Mutex
	cxn   *brokerCxn

	lastUsed int64 // atomic unix nanos, for cluster LRU tie-break
}

func (cl *Client) newBroker(meta BrokerDescriptor) *broker {
	b := &broker{
		cl:   cl,
		meta: meta,
		reqs: make(chan promisedReq, 16),
	}
	go b.handleReqs()
	return b
}

// stopForever permanently disables this broker; every pending and future
// request fails with ErrBrokerDead (spec §4.C "subsequent sends are
// rejected until the connection is replaced by the cluster layer").
func (b *broker) stopForever() {
	if atomic.SwapInt32(&b.dead, 1) == 1 {
		return
	}
	go func() {
		for pr := range b.reqs {
			pr.promise(nil, ErrBrokerDead)
		}
	}()
	b.dieMu.Lock()
	b.dieMu.Unlock()
	close(b.reqs)

	b.cxnMu.Lock()
	if b.cxn != nil {
		b.cxn.die()
	}
	b.cxnMu.Unlock()
}

// do enqueues req and invokes promise once it resolves (spec §4.C send).
func (b *broker) do(ctx context.Context, req kmsg.Request, promise func(kmsg.Response, error)) {
	var err error
	b.dieMu.RLock()
	if atomic.LoadInt32(&b.dead) == 1 {
		err = ErrBrokerDead
	} else {
		select {
		case b.reqs <- promisedReq{ctx, req, promise}:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	b.dieMu.RUnlock()
	if err != nil {
		promise(nil, err)
	}
}

// waitResp is the synchronous convenience wrapper used throughout the
// engine (spec §4.C "send(request) -> future<response>", realized here as a
// blocking call from the calling goroutine's perspective while do's
// dispatch loop stays single-threaded per connection).
func (b *broker) waitResp(ctx context.Context, req kmsg.Request) (kmsg.Response, error) {
	type result struct {
		resp kmsg.Response
		err  error
	}
	done := make(chan result, 1)
	b.do(ctx, req, func(resp kmsg.Response, err error) {
		done <- result{resp, err}
	})
	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleReqs is the single goroutine that serially owns this broker's
// connection: it is the only writer, which is what gives per-connection
// FIFO framing (spec §4.C "Requests issued on one connection are written in
// the order received").
func (b *broker) handleReqs() {
	for pr := range b.reqs {
		atomic.StoreInt64(&b.lastUsed, time.Now().UnixNano())

		cxn, err := b.loadConnection(pr.ctx)
		if err != nil {
			pr.promise(nil, err)
			continue
		}

		select {
		case <-pr.ctx.Done():
			pr.promise(nil, pr.ctx.Err())
			continue
		default:
		}

		corrID, err := cxn.writeRequest(pr.ctx, pr.req)
		if err != nil {
			pr.promise(nil, err)
			cxn.die()
			continue
		}

		cxn.waitResp(promisedResp{
			ctx:     pr.ctx,
			corrID:  corrID,
			expect:  pr.req.ResponseKind(),
			promise: pr.promise,
		})
	}
}

// loadConnection returns the broker's connection, creating it if necessary.
func (b *broker) loadConnection(ctx context.Context) (*brokerCxn, error) {
	b.cxnMu.Lock()
	defer b.cxnMu.Unlock()

	if b.cxn != nil && atomic.LoadInt32(&b.cxn.dead) == 0 {
		return b.cxn, nil
	}

	start := time.Now()
	conn, err := b.cl.cfg.dialFn(ctx, "tcp", b.meta.addr())
	since := time.Since(start)
	b.cl.cfg.hookList.each(func(h Hook) {
		if h, ok := h.(BrokerConnectHook); ok {
			h.OnConnect(b.meta, since, conn, err)
		}
	})
	if err != nil {
		b.cl.cfg.logger.Log(LogLevelWarn, "unable to connect to broker", "addr", b.meta.addr(), "id", b.meta.NodeID, "err", err)
		return nil, err
	}
	b.cl.cfg.logger.Log(LogLevelDebug, "connected to broker", "addr", b.meta.addr(), "id", b.meta.NodeID)

	cxn := &brokerCxn{
		cl:    b.cl,
		b:     b,
		conn:  conn,
		resps: make(chan promisedResp, 16),
	}
	go cxn.handleResps()
	b.cxn = cxn
	return cxn, nil
}

// brokerCxn is the single TCP connection to one broker (spec §4.C).
type brokerCxn struct {
	cl   *Client
	b    *broker
	conn net.Conn

	corrID int32 // only touched from broker.handleReqs, so unsynchronized

	dieMu sync.RWMutex
	resps chan promisedResp
	dead  int32
}

// writeRequest frames and writes req, returning its correlation ID.
func (cxn *brokerCxn) writeRequest(ctx context.Context, req kmsg.Request) (int32, error) {
	id := cxn.corrID
	cxn.corrID++

	body := kmsg.AppendRequest(nil, cxn.cl.cfg.clientID, id, req)

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	writeStart := time.Now()
	n, err := writeFull(cxn.conn, frame)
	took := time.Since(writeStart)

	cxn.cl.cfg.hookList.each(func(h Hook) {
		if h, ok := h.(BrokerWriteHook); ok {
			h.OnWrite(cxn.b.meta, req.Key(), n, 0, took, err)
		}
	})

	if err != nil {
		return 0, ErrConnDead
	}
	return id, nil
}

func writeFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// waitResp enqueues pr to be matched against an incoming response frame.
func (cxn *brokerCxn) waitResp(pr promisedResp) {
	dead := false
	cxn.dieMu.RLock()
	if atomic.LoadInt32(&cxn.dead) == 1 {
		dead = true
	} else {
		cxn.resps <- pr
	}
	cxn.dieMu.RUnlock()
	if dead {
		pr.promise(nil, ErrConnDead)
	}
}

// handleResps is the single reader goroutine for this connection: framing
// is a 4-byte big-endian length prefix, short reads aggregate until a full
// frame is available (spec §4.C "Read side is framed by...").
func (cxn *brokerCxn) handleResps() {
	defer cxn.die()

	for pr := range cxn.resps {
		raw, err := cxn.readFrame()
		if err != nil {
			pr.promise(nil, err)
			return
		}

		gotID, body, err := kmsg.ReadResponseHeader(raw)
		if err != nil {
			pr.promise(nil, &kmsg.ProtocolError{Err: err})
			return
		}
		if gotID != pr.corrID {
			pr.promise(nil, ErrCorrelationIDMismatch)
			return
		}

		resp := pr.expect
		readErr := resp.ReadFrom(body)
		if readErr != nil {
			pr.promise(nil, &kmsg.ProtocolError{APIKey: resp.Key(), Version: resp.Version(), Err: readErr})
			// Framing is suspect; close the connection (spec §7.1).
			return
		}

		if tr, ok := resp.(kmsg.ThrottleResponse); ok {
			if ms := tr.Throttle(); ms > 0 {
				cxn.cl.cfg.hookList.each(func(h Hook) {
					if h, ok := h.(BrokerThrottleHook); ok {
						h.OnThrottle(cxn.b.meta, time.Duration(ms)*time.Millisecond)
					}
				})
			}
		}

		pr.promise(resp, nil)
	}
}

func (cxn *brokerCxn) readFrame() ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(cxn.conn, sizeBuf[:]); err != nil {
		return nil, ErrConnDead
	}
	size := int32(binary.BigEndian.Uint32(sizeBuf[:]))
	if size < 0 {
		return nil, ErrInvalidRespSize
	}
	if limit := cxn.b.cl.cfg.maxBrokerReadBytes; size > limit {
		return nil, &ErrLargeRespSize{Size: size, Limit: limit}
	}
	buf := make([]byte, size)
	readStart := time.Now()
	_, err := io.ReadFull(cxn.conn, buf)
	took := time.Since(readStart)
	cxn.cl.cfg.hookList.each(func(h Hook) {
		if h, ok := h.(BrokerReadHook); ok {
			h.OnRead(cxn.b.meta, 0, len(buf), 0, took, err)
		}
	})
	if err != nil {
		return nil, ErrConnDead
	}
	return buf, nil
}

// die kills the connection: closes the socket and fails every pending
// response promise with ErrConnDead (spec §4.C).
func (cxn *brokerCxn) die() {
	if atomic.SwapInt32(&cxn.dead, 1) == 1 {
		return
	}
	cxn.conn.Close()

	cxn.cl.cfg.hookList.each(func(h Hook) {
		if h, ok := h.(BrokerDisconnectHook); ok {
			h.OnDisconnect(cxn.b.meta, cxn.conn)
		}
	})

	go func() {
		for pr := range cxn.resps {
			pr.promise(nil, ErrConnDead)
		}
	}()
	cxn.dieMu.Lock()
	cxn.dieMu.Unlock()
	close(cxn.resps)
}
