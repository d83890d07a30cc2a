package kgo

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/kreq/pkg/kbin"
	"github.com/twmb/kreq/pkg/kerr"
	"github.com/twmb/kreq/pkg/kmsg"
	"github.com/twmb/kreq/pkg/kreq"
)

// broker is the concrete kreq.Broker collaborator: the connection state
// machine, socket multiplexing, and I/O loop that the request/response
// engine in pkg/kreq reaches only through typed interfaces. It owns one
// serial executor per broker: all encoding, sending, receiving, and
// handler invocation for a given broker happen on that broker's executor
// in strict sequence.
type broker struct {
	cl *Client

	nodeID int32
	addr   string
	meta   BrokerMetadata

	// cxnNormal, cxnProduce, and cxnFetch each manage one TCP connection.
	// loadConnection sends Produce requests on cxnProduce and everything
	// else on cxnNormal, separating control traffic from bulk produce
	// traffic; no request kind is routed to cxnFetch.
	cxnNormal  *brokerCxn
	cxnProduce *brokerCxn
	cxnFetch   *brokerCxn

	dieMu sync.RWMutex
	reqs  chan *envQueueItem
	flash chan *envQueueItem
	dead  int32

	driver  *kreq.Driver
	expirer *kreq.Expirer
}

// envQueueItem is one queued Envelope together with the time it was
// enqueued.
type envQueueItem struct {
	env     *kreq.Envelope
	enqueue time.Time
}

const unknownControllerID = -1

func unknownSeedID(seedNum int) int32 {
	return int32(math.MinInt32 + seedNum)
}

var unknownMetadata = BrokerMetadata{NodeID: -1}

// BrokerMetadata is metadata for a broker, mirroring
// kmsg.MetadataResponseBroker.
type BrokerMetadata struct {
	NodeID int32
	Port   int32
	Host   string
	Rack   *string
}

func (m BrokerMetadata) equals(other kmsg.MetadataResponseBroker) bool {
	return m.NodeID == other.NodeID &&
		m.Port == other.Port &&
		m.Host == other.Host &&
		(m.Rack == nil && other.Rack == nil ||
			m.Rack != nil && other.Rack != nil && *m.Rack == *other.Rack)
}

func (cl *Client) newBroker(nodeID int32, host string, port int32, rack *string) *broker {
	b := &broker{
		cl:     cl,
		nodeID: nodeID,
		addr:   net.JoinHostPort(host, strconv.Itoa(int(port))),
		meta: BrokerMetadata{
			NodeID: nodeID,
			Host:   host,
			Port:   port,
			Rack:   rack,
		},
		reqs:    make(chan *envQueueItem, 10),
		flash:   make(chan *envQueueItem, 10),
		expirer: kreq.NewExpirer(),
	}
	b.driver = kreq.NewDriver(b, cl.cfg.metadata, cl.cfg.group)
	go b.handleReqs()
	go b.scanExpirations()
	return b
}

// scanExpirations periodically fails any Envelope whose deadline has
// passed, distinguishing a request that timed out while still queued
// (TimedOut) from one that timed out waiting on a reply already sent
// (TimedOutQueue).
func (b *broker) scanExpirations() {
	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()
	for range t.C {
		if atomic.LoadInt32(&b.dead) == 1 {
			return
		}
		b.expirer.Scan(time.Now(), func(env *kreq.Envelope, sent bool, err error) {
			b.deliver(env, nil, err)
		})
	}
}

// Enqueue implements kreq.Broker: it hands env off to this broker's send
// queue, jumping to the flash queue when env.Flash is set. Flash requests
// overtake non-flash requests but do not reorder amongst themselves.
//
// A retried envelope waits out the configured backoff before re-entering
// the queue; the retry driver decides whether to resend, this decides
// when.
func (b *broker) Enqueue(env *kreq.Envelope) {
	if n := env.RetryCount; n > 0 && b.cl.cfg.retryBackoff != nil {
		if backoff := b.cl.cfg.retryBackoff(n); backoff > 0 {
			time.AfterFunc(backoff, func() { b.enqueue(env) })
			return
		}
	}
	b.enqueue(env)
}

func (b *broker) enqueue(env *kreq.Envelope) {
	item := &envQueueItem{env: env, enqueue: time.Now()}
	env.MarkEnqueued()

	dead := false
	b.dieMu.RLock()
	if atomic.LoadInt32(&b.dead) == 1 {
		dead = true
	} else if env.Flash {
		b.flash <- item
	} else {
		b.reqs <- item
	}
	b.dieMu.RUnlock()

	if dead {
		b.failEnvelope(env, kerr.Destroy)
	}
}

// ApiVersionSupported implements kreq.Broker by consulting cxnNormal's
// negotiated version table.
func (b *broker) ApiVersionSupported(key, minReq, maxReq int16) (int16, uint32, bool) {
	cxn := b.cxnNormal
	if cxn == nil {
		return maxReq, 0, true // no connection yet; pre-0.10 fallback
	}
	v, feat, ok := kmsg.Negotiate(cxn.versions, key, kmsg.VersionRange{Min: minReq, Max: maxReq})
	return v, uint32(feat), ok
}

func (b *broker) failEnvelope(env *kreq.Envelope, err error) {
	env.Deliver(kreq.Finalize(env, nil, err))
}

// stopForever permanently disables this broker, draining anything queued
// with ErrBrokerDead.
func (b *broker) stopForever() {
	if atomic.SwapInt32(&b.dead, 1) == 1 {
		return
	}
	go func() {
		for item := range b.reqs {
			b.failEnvelope(item.env, ErrBrokerDead)
		}
	}()
	go func() {
		for item := range b.flash {
			b.failEnvelope(item.env, ErrBrokerDead)
		}
	}()
	b.dieMu.Lock()
	b.dieMu.Unlock()
	close(b.reqs)
	close(b.flash)
}

// pickQueue drains the flash queue first on every iteration so control
// traffic (Metadata, ApiVersions, SaslHandshake) never waits behind a
// backlog of ordinary requests.
func (b *broker) pickQueue() (*envQueueItem, bool) {
	select {
	case item, ok := <-b.flash:
		return item, ok
	default:
	}
	select {
	case item, ok := <-b.flash:
		return item, ok
	case item, ok := <-b.reqs:
		return item, ok
	}
}

// handleReqs is this broker's serial executor: every encode, send, and
// dispatch-to-handler for this broker happens here, one at a time, so no
// locking is needed inside the encoders or decoders themselves.
func (b *broker) handleReqs() {
	defer func() {
		b.cxnNormal.die()
		b.cxnProduce.die()
		b.cxnFetch.die()
	}()

	for {
		item, ok := b.pickQueue()
		if !ok {
			return
		}
		b.handleOne(item)
	}
}

func (b *broker) handleOne(item *envQueueItem) {
	env := item.env
	req := env.Req

	cxn, err := b.loadConnection(req.Key())
	if err != nil {
		b.terminal(env, err)
		return
	}

	version, _, ok := kmsg.Negotiate(cxn.versions, req.Key(), kmsg.VersionRange{Min: req.MinVersion(), Max: req.MaxVersion()})
	if !ok {
		b.terminal(env, kerr.UnsupportedFeature)
		return
	}
	req.SetVersion(version)

	env.MarkInFlight()
	b.expirer.Track(env, false)
	corrID, err := cxn.writeRequest(req, item.enqueue)
	if err != nil {
		cxn.die()
		b.expirer.Untrack(env)
		b.terminal(env, err)
		return
	}
	b.expirer.MarkSent(env)
	env.CorrelationID = corrID

	if env.NoResponse {
		b.expirer.Untrack(env)
		env.Deliver(kreq.Finalize(env, nil, nil))
		return
	}

	cxn.waitResp(promisedResp{
		corrID:  corrID,
		env:     env,
		b:       b,
		enqueue: time.Now(),
	})
}

// terminal fails env outright: no bytes were ever exchanged with a
// broker for this attempt (a dial, negotiation, or write failure), so
// there is nothing for env.Handle to decode.
func (b *broker) terminal(env *kreq.Envelope, err error) {
	b.deliver(env, nil, err)
}

// deliver is the single place a reply's raw bytes (or a locally
// fabricated failure with no bytes at all) reach the engine:
// decode via env.Handle (or the generic fallback), then error-action
// classification, then the retry/refresh driver, and finally the reply
// route.
func (b *broker) deliver(env *kreq.Envelope, raw []byte, ioErr error) {
	handle := env.Handle
	if handle == nil {
		handle = defaultHandle
	}
	hr := handle(env, raw, ioErr)

	if tr, ok := hr.Resp.(kmsg.ThrottleResponse); ok {
		if ms := tr.Throttle(); ms > 0 {
			b.observeThrottle(ms)
		}
	}

	code := kerr.Code(0)
	if ke, ok := hr.Err.(*kerr.Error); ok {
		code = ke.Code
	} else if hr.Err != nil {
		code = kerr.UnknownServerError.Code
	}
	bits := kreq.Classify(code, env.Overrides, env)
	if hr.Retry {
		bits |= kreq.Retry
	}
	if b.driver != nil && b.driver.Act(bits, env, hr.Err) {
		return // re-enqueued; caller's result withheld until the retry settles
	}
	res := kreq.Finalize(env, hr.Resp, hr.Err)
	env.Deliver(res)
}

// defaultHandle decodes reply using env.Req's own ResponseKind when the
// caller supplied no domain-specific Handler. The ApiVersions and
// SaslHandshake exchanges made while a connection initializes do not
// pass through here; they are written and read directly by init. A
// higher-level client built on this engine would normally install its
// own Handler to extract per-partition error codes.
func defaultHandle(env *kreq.Envelope, raw []byte, ioErr error) kreq.HandlerResult {
	if ioErr != nil {
		return kreq.HandlerResult{Err: ioErr}
	}
	resp := env.Req.ResponseKind()
	if vr, ok := resp.(kmsg.VersionedResponse); ok {
		vr.SetDecodeVersion(env.Req.GetVersion())
	}
	if err := resp.ReadFrom(raw); err != nil {
		return kreq.HandlerResult{Err: err}
	}
	return kreq.HandlerResult{Resp: resp}
}

func (b *broker) observeThrottle(ms int32) {
	b.cl.cfg.hooks.each(func(h Hook) {
		if h, ok := h.(BrokerThrottleHook); ok {
			h.OnThrottle(b.meta, ms)
		}
	})
}

// bufPool reuses issued-request buffers across writes to brokers.
type bufPool struct{ p *sync.Pool }

func newBufPool() bufPool {
	return bufPool{p: &sync.Pool{New: func() interface{} { r := make([]byte, 1<<10); return &r }}}
}

func (p bufPool) get() []byte  { return (*p.p.Get().(*[]byte))[:0] }
func (p bufPool) put(b []byte) { p.p.Put(&b) }

func (b *broker) loadConnection(reqKey int16) (*brokerCxn, error) {
	pcxn := &b.cxnNormal
	switch reqKey {
	case kmsg.Produce:
		pcxn = &b.cxnProduce
	}

	if *pcxn != nil && atomic.LoadInt32(&(*pcxn).dead) == 0 {
		return *pcxn, nil
	}

	conn, err := b.connect()
	if err != nil {
		return nil, err
	}

	cxn := &brokerCxn{
		cl:     b.cl,
		b:      b,
		addr:   b.addr,
		conn:   conn,
		deadCh: make(chan struct{}),
	}
	if err := cxn.init(); err != nil {
		b.cl.cfg.logger.Log(LogLevelDebug, "connection initialization failed", "addr", b.addr, "id", b.meta.NodeID, "err", err)
		cxn.closeConn()
		return nil, err
	}
	b.cl.cfg.logger.Log(LogLevelDebug, "connection initialized successfully", "addr", b.addr, "id", b.meta.NodeID)
	*pcxn = cxn
	return cxn, nil
}

func (b *broker) connect() (net.Conn, error) {
	b.cl.cfg.logger.Log(LogLevelDebug, "opening connection to broker", "addr", b.addr, "id", b.meta.NodeID)
	start := time.Now()
	conn, err := b.cl.cfg.dialFn(context.Background(), "tcp", b.addr)
	since := time.Since(start)
	b.cl.cfg.hooks.each(func(h Hook) {
		if h, ok := h.(BrokerConnectHook); ok {
			h.OnConnect(b.meta, since, conn, err)
		}
	})
	if err != nil {
		b.cl.cfg.logger.Log(LogLevelWarn, "unable to open connection to broker", "addr", b.addr, "id", b.meta.NodeID, "err", err)
		if _, ok := err.(net.Error); ok {
			return nil, ErrNoDial
		}
		return nil, err
	}
	b.cl.cfg.logger.Log(LogLevelDebug, "connection opened to broker", "addr", b.addr, "id", b.meta.NodeID)
	return conn, nil
}

// brokerCxn manages one TCP connection to a broker. It is separate from
// broker to allow lazy (re)creation after a failure.
type brokerCxn struct {
	conn net.Conn

	cl *Client
	b  *broker

	addr     string
	versions kmsg.BrokerVersions

	mechanism Mechanism

	corrID int32

	dieMu sync.RWMutex
	resps chan promisedResp
	dead  int32

	deadCh chan struct{}
}

func (cxn *brokerCxn) init() error {
	if err := cxn.requestAPIVersions(); err != nil {
		cxn.cl.cfg.logger.Log(LogLevelError, "unable to request api versions", "err", err)
		return err
	}
	if err := cxn.sasl(); err != nil {
		cxn.cl.cfg.logger.Log(LogLevelError, "unable to initialize sasl", "err", err)
		return err
	}
	cxn.resps = make(chan promisedResp, 10)
	go cxn.handleResps()
	return nil
}

// requestAPIVersions issues ApiVersions with a shortened deadline and no
// retries: legacy brokers close the connection outright on an unknown
// API key, so this request is bounded by apiVersionsTimeout rather than
// the ordinary socket timeout and resending teaches us nothing.
func (cxn *brokerCxn) requestAPIVersions() error {
	req := &kmsg.ApiVersionsRequest{}
	req.SetVersion(req.MaxVersion())

	corrID, err := cxn.writeRequest(req, time.Now())
	if err != nil {
		return err
	}
	rawResp, err := cxn.readResponse(cxn.cl.cfg.apiVersionsTimeout, corrID)
	if err != nil {
		return err
	}

	resp := new(kmsg.ApiVersionsResponse)
	if err := resp.ReadFrom(rawResp); err != nil {
		// ReadFrom fails only on a malformed reply (kerr.BadMsg). The
		// connection then keeps no version table and proceeds as though
		// the broker has no version discovery; a well-formed
		// UNSUPPORTED_VERSION reply is handled below.
		cxn.versions = kmsg.NewBrokerVersions(nil)
		return nil
	}

	bv, err := kreq.HandleApiVersions(resp)
	if err != nil {
		if err == kerr.UnsupportedVersion {
			cxn.versions = kmsg.NewBrokerVersions(nil)
			return nil
		}
		return err
	}
	cxn.versions = bv
	cxn.cl.cfg.logger.Log(LogLevelDebug, "initialized api versions", "addr", cxn.addr)
	return nil
}

// sasl drives the external Mechanism through SaslHandshake and the
// subsequent challenge loop. The mechanisms themselves are an external
// concern; this only sequences the handshake.
func (cxn *brokerCxn) sasl() error {
	if len(cxn.cl.cfg.sasls) == 0 {
		return nil
	}
	mechanism := cxn.cl.cfg.sasls[0]

	req := &kmsg.SaslHandshakeRequest{Mechanism: mechanism.Name()}
	version, _, ok := kmsg.Negotiate(cxn.versions, req.Key(), kmsg.VersionRange{Min: req.MinVersion(), Max: req.MaxVersion()})
	if !ok {
		return kerr.UnsupportedFeature
	}
	req.SetVersion(version)

	corrID, err := cxn.writeRequest(req, time.Now())
	if err != nil {
		return err
	}
	rawResp, err := cxn.readResponse(cxn.cl.cfg.socketTimeout, corrID)
	if err != nil {
		return err
	}
	resp := new(kmsg.SaslHandshakeResponse)
	if err := resp.ReadFrom(rawResp); err != nil {
		return err
	}
	if err := kerr.ErrorForCode(resp.ErrorCode); err != nil {
		return err
	}

	cxn.mechanism = mechanism
	return cxn.doSasl()
}

func (cxn *brokerCxn) doSasl() error {
	var challenge []byte
	for {
		resp, done, err := cxn.mechanism.Authenticate(challenge)
		if err != nil {
			return err
		}

		buf := cxn.cl.bufPool.get()
		buf = append(buf[:0], 0, 0, 0, 0)
		binary.BigEndian.PutUint32(buf, uint32(len(resp)))
		buf = append(buf, resp...)
		_, writeErr := cxn.writeConn(buf, cxn.cl.cfg.socketTimeout)
		cxn.cl.bufPool.put(buf)
		if writeErr != nil {
			return ErrConnDead
		}
		if done {
			return nil
		}

		_, challenge, err = cxn.readConn(cxn.cl.cfg.socketTimeout)
		if err != nil {
			return err
		}
	}
}

// writeRequest writes req to the connection, returning the correlation ID
// assigned, and bumps the connection's correlation ID counter for the
// next write.
func (cxn *brokerCxn) writeRequest(req kmsg.Request, enqueuedAt time.Time) (int32, error) {
	buf := cxn.cl.bufPool.get()
	defer cxn.cl.bufPool.put(buf)
	buf = kmsg.AppendRequest(buf[:0], req, cxn.corrID, nil)

	_, err := cxn.writeConn(buf, cxn.cl.cfg.socketTimeout)
	cxn.cl.cfg.hooks.each(func(h Hook) {
		if wh, ok := h.(BrokerWriteHook); ok {
			wh.OnWrite(cxn.b.meta, req.Key(), len(buf), err)
		}
	})
	if err != nil {
		return 0, classifyConnErr(err)
	}
	id := cxn.corrID
	cxn.corrID++
	return id, nil
}

func (cxn *brokerCxn) writeConn(buf []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		cxn.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	defer cxn.conn.SetWriteDeadline(time.Time{})
	return cxn.conn.Write(buf)
}

func (cxn *brokerCxn) readConn(timeout time.Duration) (int, []byte, error) {
	if timeout > 0 {
		cxn.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	defer cxn.conn.SetReadDeadline(time.Time{})

	sizeBuf := make([]byte, 4)
	if _, err := io.ReadFull(cxn.conn, sizeBuf); err != nil {
		return 0, nil, classifyConnErr(err)
	}
	size := int32(binary.BigEndian.Uint32(sizeBuf))
	if size < 0 {
		return 0, nil, kbin.ErrNotEnoughData
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(cxn.conn, buf)
	if err != nil {
		return n, nil, classifyConnErr(err)
	}
	return n, buf, nil
}

// readResponse reads one response, validating its correlation ID.
func (cxn *brokerCxn) readResponse(timeout time.Duration, corrID int32) ([]byte, error) {
	n, buf, err := cxn.readConn(timeout)
	cxn.cl.cfg.hooks.each(func(h Hook) {
		if rh, ok := h.(BrokerReadHook); ok {
			rh.OnRead(cxn.b.meta, n, err)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(buf) < 4 {
		return nil, kbin.ErrNotEnoughData
	}
	gotID := int32(binary.BigEndian.Uint32(buf))
	if gotID != corrID {
		return nil, ErrCorrelationIDMismatch
	}
	return buf[4:], nil
}

func (cxn *brokerCxn) closeConn() {
	cxn.cl.cfg.hooks.each(func(h Hook) {
		if h, ok := h.(BrokerDisconnectHook); ok {
			h.OnDisconnect(cxn.b.meta, cxn.conn)
		}
	})
	cxn.conn.Close()
	close(cxn.deadCh)
}

func (cxn *brokerCxn) die() {
	if cxn == nil {
		return
	}
	if atomic.SwapInt32(&cxn.dead, 1) == 1 {
		return
	}
	cxn.closeConn()
	go func() {
		for pr := range cxn.resps {
			pr.b.deliver(pr.env, nil, kerr.Transport)
		}
	}()
	cxn.dieMu.Lock()
	cxn.dieMu.Unlock()
	close(cxn.resps)
}

// promisedResp is one reply this connection's handleResps loop is
// waiting on, carrying the Envelope all the way through decode and
// classification.
type promisedResp struct {
	corrID  int32
	env     *kreq.Envelope
	b       *broker
	enqueue time.Time
}

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
		pr.b.deliver(pr.env, nil, kerr.Transport)
	}
}

// handleResps serially reads every response for one connection and
// hands the raw bytes (or a read failure) to the owning broker's
// deliver, which decodes via the envelope's Handler and runs the
// classify-and-act pass.
func (cxn *brokerCxn) handleResps() {
	defer cxn.die()

	for pr := range cxn.resps {
		cxn.b.expirer.Untrack(pr.env)
		raw, err := cxn.readResponse(cxn.cl.cfg.socketTimeout, pr.corrID)
		if err != nil {
			cxn.b.deliver(pr.env, nil, err)
			return
		}
		cxn.b.deliver(pr.env, raw, nil)
	}
}
