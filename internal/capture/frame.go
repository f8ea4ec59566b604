package capture

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bnema/waydmabuf/internal/logger"
)

// State of a frame object
type State int

const (
	StateIdle State = iota
	StateRequested
	StateAccumulating
	StateReady
	StateCancelled
	// StateAborted is not an outcome: the frame was torn down by a protocol
	// violation or abandoned by its owner.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequested:
		return "requested"
	case StateAccumulating:
		return "accumulating"
	case StateReady:
		return "ready"
	case StateCancelled:
		return "cancelled"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further event may be applied
func (s State) Terminal() bool {
	return s == StateReady || s == StateCancelled || s == StateAborted
}

// Metadata is the frame description accumulated from the frame event
type Metadata struct {
	Width       uint32
	Height      uint32
	OffsetX     uint32
	OffsetY     uint32
	Format      Format
	Modifier    Modifier
	NumObjects  uint32
	BufferFlags BufferFlags
	Flags       FrameFlags
}

// Object is one delivered DMA-BUF object and its layout
type Object struct {
	Index      uint32
	Handle     *Handle
	Size       uint32
	Offset     uint32
	Stride     uint32
	PlaneIndex uint32
}

// Result is a completed frame. The caller owns every handle in Objects and
// must Close the result (or release the handles) when done.
type Result struct {
	FrameID   uint32
	Metadata  Metadata
	Objects   []Object
	Timestamp time.Time
}

// Close closes every handle still owned by the result
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	err := closeObjects(r.Objects)
	r.Objects = nil
	return err
}

// Frame is the state machine for one capture attempt. It never talks to the
// wire; events are fed to Apply in delivery order.
type Frame struct {
	id      uint32
	state   State
	meta    Metadata
	objects []Object
	seen    map[uint32]bool
	result  *Result
	cancel  *CancelledError
}

// NewFrame returns a frame in the idle state
func NewFrame(id uint32) *Frame {
	return &Frame{id: id, state: StateIdle}
}

func (f *Frame) ID() uint32 {
	return f.id
}

func (f *Frame) State() State {
	return f.state
}

// Metadata returns the description received so far
func (f *Frame) Metadata() Metadata {
	return f.meta
}

// Pending returns the number of objects accumulated and not yet handed off
func (f *Frame) Pending() int {
	return len(f.objects)
}

// MarkRequested records that the capture request was sent
func (f *Frame) MarkRequested() error {
	if f.state != StateIdle {
		return fmt.Errorf("frame %d: capture already requested (state %s)", f.id, f.state)
	}
	f.state = StateRequested
	return nil
}

// Apply advances the state machine by one event. Any returned error is a
// *ProtocolError; by the time it is returned every descriptor the frame owned,
// including the one carried by ev, has been closed.
func (f *Frame) Apply(ev Event) error {
	if ev == nil {
		return f.violation("nil", "no event")
	}

	if f.state.Terminal() {
		discardEvent(ev)
		return &ProtocolError{
			FrameID: f.id,
			State:   f.state,
			Event:   ev.eventName(),
			Reason:  "event after terminal state",
		}
	}

	logger.Debug("frame event", "frame", f.id, "event", ev.eventName(), "state", f.state)

	switch e := ev.(type) {
	case FrameEvent:
		return f.applyFrame(e)
	case ObjectEvent:
		return f.applyObject(e)
	case ReadyEvent:
		return f.applyReady(e)
	case CancelEvent:
		return f.applyCancel(e)
	default:
		return f.violation(ev.eventName(), fmt.Sprintf("unhandled event type %T", ev))
	}
}

func (f *Frame) applyFrame(e FrameEvent) error {
	switch f.state {
	case StateRequested:
	case StateAccumulating:
		return f.violation("frame", "duplicate frame event")
	default:
		return f.violation("frame", "capture was not requested")
	}

	f.meta = Metadata{
		Width:       e.Width,
		Height:      e.Height,
		OffsetX:     e.OffsetX,
		OffsetY:     e.OffsetY,
		Format:      Format(e.Format),
		Modifier:    ModifierFromHalves(e.ModHigh, e.ModLow),
		NumObjects:  e.NumObjects,
		BufferFlags: BufferFlags(e.BufferFlags),
		Flags:       FrameFlags(e.Flags),
	}
	f.objects = make([]Object, 0, e.NumObjects)
	f.seen = make(map[uint32]bool, e.NumObjects)
	f.state = StateAccumulating

	logger.Debug("frame described",
		"frame", f.id,
		"size", fmt.Sprintf("%dx%d", e.Width, e.Height),
		"format", f.meta.Format,
		"modifier", f.meta.Modifier,
		"objects", e.NumObjects)
	return nil
}

func (f *Frame) applyObject(e ObjectEvent) error {
	if f.state != StateAccumulating {
		discardEvent(e)
		return f.violation("object", "object before frame event")
	}
	if e.Handle == nil || e.Handle.Fd() < 0 {
		return f.violation("object", "object without a file descriptor")
	}
	if uint32(len(f.objects)) >= f.meta.NumObjects {
		discardEvent(e)
		return f.violation("object", fmt.Sprintf("more than %d objects", f.meta.NumObjects))
	}
	if e.Index >= f.meta.NumObjects {
		discardEvent(e)
		return f.violation("object", fmt.Sprintf("index %d out of range for %d objects", e.Index, f.meta.NumObjects))
	}
	if f.seen[e.Index] {
		discardEvent(e)
		return f.violation("object", fmt.Sprintf("index %d delivered twice", e.Index))
	}
	for _, o := range f.objects {
		if o.Handle.Fd() == e.Handle.Fd() {
			discardEvent(e)
			return f.violation("object", fmt.Sprintf("descriptor %d delivered twice", o.Handle.Fd()))
		}
	}

	f.seen[e.Index] = true
	f.objects = append(f.objects, Object{
		Index:      e.Index,
		Handle:     e.Handle,
		Size:       e.Size,
		Offset:     e.Offset,
		Stride:     e.Stride,
		PlaneIndex: e.PlaneIndex,
	})
	return nil
}

func (f *Frame) applyReady(e ReadyEvent) error {
	if f.state != StateAccumulating {
		return f.violation("ready", "ready before frame event")
	}
	if uint32(len(f.objects)) != f.meta.NumObjects {
		return f.violation("ready",
			fmt.Sprintf("%d of %d objects delivered", len(f.objects), f.meta.NumObjects))
	}

	sec := uint64(e.TvSecHi)<<32 | uint64(e.TvSecLo)
	if sec > math.MaxInt64 || e.TvNsec >= 1e9 {
		return f.violation("ready", fmt.Sprintf("timestamp %d.%09d out of range", sec, e.TvNsec))
	}

	f.result = &Result{
		FrameID:  f.id,
		Metadata: f.meta,
		Objects:  f.objects,
	}
	// A zero timestamp means the compositor gave none
	if sec != 0 || e.TvNsec != 0 {
		f.result.Timestamp = time.Unix(int64(sec), int64(e.TvNsec))
	}
	f.objects = nil
	f.state = StateReady

	logger.Debug("frame ready", "frame", f.id, "objects", len(f.result.Objects))
	return nil
}

func (f *Frame) applyCancel(e CancelEvent) error {
	if f.state != StateRequested && f.state != StateAccumulating {
		return f.violation("cancel", "capture was not requested")
	}

	if err := f.closeAll(); err != nil {
		logger.Warn("closing objects of cancelled frame", "frame", f.id, "err", err)
	}
	f.cancel = &CancelledError{FrameID: f.id, Reason: CancelReason(e.Reason)}
	f.state = StateCancelled

	logger.Debug("frame cancelled", "frame", f.id, "reason", f.cancel.Reason)
	return nil
}

// Outcome returns the completed result or the cancellation. A ready result
// is handed over once; later calls return ErrResultCollected. Calling Outcome
// before a terminal state is an error.
func (f *Frame) Outcome() (*Result, error) {
	switch f.state {
	case StateReady:
		if f.result == nil {
			return nil, fmt.Errorf("frame %d: %w", f.id, ErrResultCollected)
		}
		r := f.result
		f.result = nil
		return r, nil
	case StateCancelled:
		return nil, f.cancel
	case StateAborted:
		return nil, fmt.Errorf("frame %d aborted", f.id)
	}
	return nil, fmt.Errorf("frame %d has no outcome yet (state %s)", f.id, f.state)
}

// Abort closes every descriptor the frame still owns, including a ready
// result nobody collected, and moves a non-terminal frame to StateAborted.
func (f *Frame) Abort() error {
	err := f.closeAll()
	if f.result != nil {
		err = errors.Join(err, f.result.Close())
		f.result = nil
	}
	if !f.state.Terminal() {
		f.state = StateAborted
	}
	return err
}

func (f *Frame) violation(event, reason string) error {
	perr := &ProtocolError{FrameID: f.id, State: f.state, Event: event, Reason: reason}
	if err := f.closeAll(); err != nil {
		logger.Warn("closing objects after protocol violation", "frame", f.id, "err", err)
	}
	f.state = StateAborted
	return perr
}

func (f *Frame) closeAll() error {
	err := closeObjects(f.objects)
	f.objects = nil
	return err
}

func closeObjects(objs []Object) error {
	var errs []error
	for _, o := range objs {
		if o.Handle == nil {
			continue
		}
		if err := o.Handle.Close(); err != nil && !errors.Is(err, ErrHandleClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
