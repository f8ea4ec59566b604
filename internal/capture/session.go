// Package capture drives single-frame DMA-BUF captures of a Wayland output.
//
// A Session owns the bound export manager and output. Each StartCapture
// creates a Capture wrapping one zwlr_export_dmabuf_frame_v1 object and its
// Frame state machine. Await pumps the transport until the frame reaches
// ready or cancel. Everything runs on the caller's goroutine.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/waydmabuf/internal/logger"
)

// Transport flushes queued requests and dispatches the events they produce
type Transport interface {
	Roundtrip() error
}

// Output is a bound wl_output
type Output interface {
	ID() uint32
}

// FrameProxy is the client side of one frame object. Drain returns the
// events queued since the previous call, in delivery order, and transfers
// ownership of any descriptors they carry.
type FrameProxy interface {
	ID() uint32
	Drain() []Event
	Destroy() error
}

// Manager is a bound zwlr_export_dmabuf_manager_v1
type Manager interface {
	CaptureOutput(overlayCursor bool, output Output) (FrameProxy, error)
}

// Options tune a session
type Options struct {
	OverlayCursor bool
	MaxRoundtrips int
}

// DefaultOptions composites the cursor and waits up to eight round trips
var DefaultOptions = Options{
	OverlayCursor: true,
	MaxRoundtrips: 8,
}

// Session issues captures against one output
type Session struct {
	transport Transport
	manager   Manager
	output    Output
	opts      Options
}

// NewSession checks that both capabilities are bound before any capture
func NewSession(transport Transport, manager Manager, output Output, opts Options) (*Session, error) {
	if transport == nil {
		return nil, errors.New("capture session needs a transport")
	}
	if manager == nil {
		return nil, errors.New("capture session needs a bound export manager")
	}
	if output == nil {
		return nil, errors.New("capture session needs a bound output")
	}
	if opts.MaxRoundtrips < 1 {
		opts.MaxRoundtrips = DefaultOptions.MaxRoundtrips
	}

	return &Session{
		transport: transport,
		manager:   manager,
		output:    output,
		opts:      opts,
	}, nil
}

// Capture is one in-flight frame object
type Capture struct {
	proxy     FrameProxy
	frame     *Frame
	destroyed bool
}

func (c *Capture) ID() uint32 {
	return c.frame.ID()
}

func (c *Capture) State() State {
	return c.frame.State()
}

// Done reports whether the frame reached a terminal state
func (c *Capture) Done() bool {
	return c.frame.State().Terminal()
}

// Dispatch applies every queued event to the frame. When the frame becomes
// terminal the frame object is destroyed. A protocol violation closes all
// descriptors, destroys the object and is returned.
func (c *Capture) Dispatch() error {
	events := c.proxy.Drain()

	for i, ev := range events {
		if err := c.frame.Apply(ev); err != nil {
			for _, rest := range events[i+1:] {
				discardEvent(rest)
			}
			return errors.Join(err, c.Abandon())
		}
	}

	if c.frame.State().Terminal() && !c.destroyed {
		c.destroyed = true
		if err := c.proxy.Destroy(); err != nil {
			return errors.Join(fmt.Errorf("destroy frame %d: %w", c.ID(), err), c.frame.Abort())
		}
	}
	return nil
}

// Abandon gives up on the frame: accumulated and queued descriptors are
// closed first, then the frame object is destroyed.
func (c *Capture) Abandon() error {
	for _, ev := range c.proxy.Drain() {
		discardEvent(ev)
	}
	err := c.frame.Abort()

	if !c.destroyed {
		c.destroyed = true
		if derr := c.proxy.Destroy(); derr != nil {
			err = errors.Join(err, fmt.Errorf("destroy frame %d: %w", c.ID(), derr))
		}
	}
	return err
}

// Outcome returns the ready result or the *CancelledError
func (c *Capture) Outcome() (*Result, error) {
	return c.frame.Outcome()
}

// StartCapture sends capture_output and returns the new frame in the
// requested state. It does not wait for the compositor.
func (s *Session) StartCapture() (*Capture, error) {
	proxy, err := s.manager.CaptureOutput(s.opts.OverlayCursor, s.output)
	if err != nil {
		return nil, fmt.Errorf("capture_output on output %d: %w", s.output.ID(), err)
	}

	c := &Capture{proxy: proxy, frame: NewFrame(proxy.ID())}
	if err := c.frame.MarkRequested(); err != nil {
		return nil, errors.Join(err, c.Abandon())
	}

	logger.Debug("capture requested", "frame", proxy.ID(), "output", s.output.ID(), "overlay_cursor", s.opts.OverlayCursor)
	return c, nil
}

// Await pumps round trips until c reaches an outcome. A ready frame returns
// its result; a cancelled one returns a *CancelledError. Transport failures,
// protocol violations, ctx cancellation and an exhausted round-trip budget
// abandon the frame and return the cause.
func (s *Session) Await(ctx context.Context, c *Capture) (*Result, error) {
	for round := 1; round <= s.opts.MaxRoundtrips; round++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Join(err, c.Abandon())
		}

		if err := s.transport.Roundtrip(); err != nil {
			return nil, errors.Join(err, c.Abandon())
		}

		if err := c.Dispatch(); err != nil {
			return nil, err
		}

		if c.Done() {
			logger.Debug("capture finished", "frame", c.ID(), "state", c.State(), "roundtrips", round)
			return c.Outcome()
		}
	}

	err := fmt.Errorf("%w: frame %d still %s after %d round trips",
		ErrNoOutcome, c.ID(), c.State(), s.opts.MaxRoundtrips)
	return nil, errors.Join(err, c.Abandon())
}

// CaptureFrame requests one frame and waits for its outcome
func (s *Session) CaptureFrame(ctx context.Context) (*Result, error) {
	c, err := s.StartCapture()
	if err != nil {
		return nil, err
	}
	return s.Await(ctx, c)
}
