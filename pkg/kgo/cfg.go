package kgo

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/twmb/kreq/pkg/kreq"
)

// cfg holds everything passed by value at client construction time.
// Configuration loading (env vars, files, CLI flags) is an external
// concern; this struct is only ever built programmatically by a caller.
type cfg struct {
	logger Logger
	hooks  hooks

	dialFn func(ctx context.Context, network, addr string) (net.Conn, error)

	sasls []Mechanism

	// socketTimeout bounds an ordinary request/response round trip.
	// apiVersionsTimeout is shorter and used only for the ApiVersions
	// handshake itself: legacy brokers close the connection on unknown
	// API keys, so this request must not wait as long as a normal one
	// might.
	socketTimeout      time.Duration
	apiVersionsTimeout time.Duration

	// retryBackoff computes the delay before a retried Envelope is
	// re-enqueued; the driver (pkg/kreq) decides *whether* to retry, this
	// decides *when*. retryCap bounds how many times any one envelope is
	// retried.
	retryBackoff func(tries int) time.Duration
	retryCap     int

	// metadata and group are the retry driver's MetadataCollaborator
	// and GroupCollaborator. Both are nil by default: the cluster
	// metadata cache and consumer group state machine that would
	// normally implement them are external concerns. A nil collaborator
	// simply means the driver's Refresh action becomes a no-op rather
	// than failing.
	metadata kreq.MetadataCollaborator
	group    kreq.GroupCollaborator
}

func defaultCfg() cfg {
	return cfg{
		logger:             kreq.NopLogger,
		dialFn:             (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		socketTimeout:      30 * time.Second,
		apiVersionsTimeout: 10 * time.Second,
		retryBackoff: func(tries int) time.Duration {
			d := time.Duration(tries) * 100 * time.Millisecond
			if d > 5*time.Second {
				d = 5 * time.Second
			}
			return d
		},
		retryCap: 3,
	}
}

// Opt configures a Client. Each Opt is a function applied in order over
// the default config.
type Opt func(*cfg)

// WithLogger sets the Logger every broker connection logs through.
func WithLogger(l Logger) Opt { return func(c *cfg) { c.logger = l } }

// WithHooks registers additional Hook values.
func WithHooks(hs ...Hook) Opt { return func(c *cfg) { c.hooks = append(c.hooks, hs...) } }

// WithSASL configures the SASL mechanisms to offer, in preference order.
func WithSASL(ms ...Mechanism) Opt { return func(c *cfg) { c.sasls = ms } }

// WithRetryCap bounds how many times any one request is retried before
// its error surfaces to the caller.
func WithRetryCap(n int) Opt { return func(c *cfg) { c.retryCap = n } }

// WithDialFn overrides how TCP connections to brokers are established.
func WithDialFn(fn func(context.Context, string, string) (net.Conn, error)) Opt {
	return func(c *cfg) { c.dialFn = fn }
}

// WithMetadataCollaborator wires the retry driver's topic-metadata
// refresh action to md.
func WithMetadataCollaborator(md kreq.MetadataCollaborator) Opt {
	return func(c *cfg) { c.metadata = md }
}

// WithGroupCollaborator wires the retry driver's coordinator-rediscovery
// actions to grp.
func WithGroupCollaborator(grp kreq.GroupCollaborator) Opt {
	return func(c *cfg) { c.group = grp }
}

// Client owns the set of brokers this engine's requests flow through,
// plus the config every broker connection shares.
type Client struct {
	cfg cfg

	bufPool bufPool
	sup     *kreq.Suppressor

	mu      sync.Mutex
	brokers map[int32]*broker
}

// NewClient builds a Client applying the given options over defaultCfg.
func NewClient(opts ...Opt) *Client {
	c := &Client{cfg: defaultCfg(), bufPool: newBufPool(), sup: kreq.NewSuppressor()}
	for _, opt := range opts {
		opt(&c.cfg)
	}
	c.brokers = make(map[int32]*broker)
	return c
}

// RequestBuilder returns the request-construction surface for one broker,
// sharing this client's full-metadata suppression gate, timeouts, and
// logger across every builder it hands out.
func (cl *Client) RequestBuilder(b *broker) *kreq.Builder {
	return kreq.NewBuilder(b, cl.sup, kreq.BuilderConfig{
		SocketTimeout:      cl.cfg.socketTimeout,
		ApiVersionsTimeout: cl.cfg.apiVersionsTimeout,
		RetryCap:           cl.cfg.retryCap,
		Logger:             cl.cfg.logger,
	})
}

// Broker returns (creating if necessary) the broker this client uses to
// reach nodeID at host:port.
func (cl *Client) Broker(nodeID int32, host string, port int32, rack *string) *broker {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if b, ok := cl.brokers[nodeID]; ok {
		return b
	}
	b := cl.newBroker(nodeID, host, port, rack)
	cl.brokers[nodeID] = b
	return b
}
