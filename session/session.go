// Package session owns the per-device state a caller threads through every
// command: the transaction engine, the scratch transaction records reused
// across calls, and the modem's sticky needs_reset flag. A Context is not
// safe for concurrent use; the spec's single-threaded-session Non-goal
// means callers never share one across goroutines.
package session

import (
	"github.com/helium/carbon/schema"
	"github.com/helium/carbon/serialport"
	"github.com/helium/carbon/transaction"
)

// Protocol limits carried over from the Atom module's own schema
// (original_source/helium-client.c).
const (
	MaxChannelNameSize = 16  // HELIUM_MAX_CHANNEL_NAME_SIZE
	MaxDataSize        = 255 // HELIUM_MAX_DATA_SIZE
	MaxFrameAppLen     = 255 // VECTOR_MAX_LEN_frame_app

	PollWaitUs     = 500000 // HELIUM_POLL_WAIT_US: cadence between poll attempts
	PollRetries60s = 120    // HELIUM_POLL_RETRIES_60S: attempts covering a 60s budget
)

// Option configures a Context at construction time, in the functional-
// options style.
type Option func(*Context)

// WithSendRetries overrides the default number of send() retry attempts.
func WithSendRetries(n int) Option {
	return func(c *Context) { c.sendRetries = n }
}

// Context is the equivalent of the Atom module's helium_ctx_t: the
// device-facing connection plus the bookkeeping a command layer needs. Its
// zero value (before NewContext) mirrors helium_init's memset-to-zero
// reset, useful for tests that construct a Context by hand.
type Context struct {
	port   serialport.Port
	engine *transaction.Engine

	req schema.Transaction
	res schema.Transaction

	needsReset bool

	sendRetries int
}

const defaultSendRetries = 3

// NewContext creates a Context driving port. It performs no I/O; the first
// command call is what exercises the link.
func NewContext(port serialport.Port, opts ...Option) *Context {
	c := &Context{
		port:        port,
		engine:      transaction.NewEngine(port),
		sendRetries: defaultSendRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WaitUs sleeps for the given number of microseconds on the Context's
// underlying port, for callers (the poll retry loop) that need to pace
// themselves between transactions without reaching past this package.
func (c *Context) WaitUs(micros int) {
	if c.port != nil {
		c.port.WaitUs(micros)
	}
}

// NeedsReset reports whether the most recent command's response carried
// the modem's needs_reset flag. Non-latching: it reflects only the latest
// decode, not any earlier one (SPEC_FULL.md invariant 10).
func (c *Context) NeedsReset() bool { return c.needsReset }

// Exchange is the shared plumbing every command package function uses:
// reset the scratch request, let fill populate it, run one transaction,
// and, when the transaction succeeds, record the response's needs_reset
// flag (a failed exchange leaves the previous value in place). The
// returned *schema.Transaction is the Context's own scratch response and
// is only valid to read until the next Exchange call.
func (c *Context) Exchange(fill func(*schema.Transaction)) (*schema.Transaction, transaction.Status, error) {
	c.req = schema.Transaction{}
	c.res = schema.Transaction{}
	fill(&c.req)

	status, err := c.engine.SendCommand(&c.req, &c.res)
	if status == transaction.StatusOK {
		c.needsReset = c.res.NeedsReset
	}
	return &c.res, status, err
}

// SendRetries returns the configured number of send() retry attempts.
// NewContext already seeds sendRetries with defaultSendRetries before
// applying Options, so an explicit WithSendRetries(0) is honored here
// rather than silently falling back to the default.
func (c *Context) SendRetries() int {
	return c.sendRetries
}
