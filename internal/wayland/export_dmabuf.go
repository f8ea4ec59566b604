package wayland

import (
	"fmt"

	"github.com/bnema/waydmabuf/internal/capture"
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// Protocol interface names
const (
	ExportDmabufManagerInterface = "zwlr_export_dmabuf_manager_v1"
	ExportDmabufFrameInterface   = "zwlr_export_dmabuf_frame_v1"
)

// Request and event opcodes from wlr-export-dmabuf-unstable-v1.xml
const (
	opManagerCaptureOutput = 0
	opManagerDestroy       = 1

	opFrameDestroy = 0

	evFrameFrame  = 0
	evFrameObject = 1
	evFrameReady  = 2
	evFrameCancel = 3
)

var (
	_ client.Dispatcher = (*ExportDmabufManager)(nil)
	_ client.Dispatcher = (*ExportDmabufFrame)(nil)
)

// ExportDmabufManager is a bound zwlr_export_dmabuf_manager_v1
type ExportDmabufManager struct {
	client.BaseProxy
	report func(error)
}

// NewExportDmabufManager creates a manager proxy and registers it
func NewExportDmabufManager(ctx *client.Context, report func(error)) *ExportDmabufManager {
	m := &ExportDmabufManager{report: report}
	ctx.Register(m)
	return m
}

// CaptureOutput sends capture_output(new_id frame, int overlay_cursor, object output).
// The returned frame collects its events until drained.
func (m *ExportDmabufManager) CaptureOutput(overlayCursor bool, output capture.Output) (capture.FrameProxy, error) {
	frame := NewExportDmabufFrame(m.Context(), m.report)

	overlay := int32(0)
	if overlayCursor {
		overlay = 1
	}

	const reqLen = 8 + 4 + 4 + 4
	var req [reqLen]byte
	l := 0
	client.PutUint32(req[l:l+4], m.ID())
	l += 4
	client.PutUint32(req[l:l+4], uint32(reqLen<<16|opManagerCaptureOutput&0x0000ffff))
	l += 4
	client.PutUint32(req[l:l+4], frame.ID())
	l += 4
	client.PutUint32(req[l:l+4], uint32(overlay))
	l += 4
	client.PutUint32(req[l:l+4], output.ID())

	if err := m.Context().WriteMsg(req[:], nil); err != nil {
		m.Context().Unregister(frame)
		return nil, fmt.Errorf("%w: capture_output: %v", ErrConnection, err)
	}
	return frame, nil
}

// Destroy releases the manager; frames already requested stay valid
func (m *ExportDmabufManager) Destroy() error {
	err := sendDestructor(m, opManagerDestroy)
	m.Context().Unregister(m)
	return err
}

// Dispatch handles incoming events (the manager has none)
func (m *ExportDmabufManager) Dispatch(_ uint32, fd int, _ []byte) {
	closeStray(fd)
}

// ExportDmabufFrame is one zwlr_export_dmabuf_frame_v1. Decoded events are
// queued in delivery order; descriptors are adopted into capture.Handle at
// decode time.
type ExportDmabufFrame struct {
	client.BaseProxy
	queue  []capture.Event
	report func(error)
}

// NewExportDmabufFrame creates a frame proxy and registers it
func NewExportDmabufFrame(ctx *client.Context, report func(error)) *ExportDmabufFrame {
	f := &ExportDmabufFrame{report: report}
	ctx.Register(f)
	return f
}

// Drain hands the queued events, and the descriptors they carry, to the caller
func (f *ExportDmabufFrame) Drain() []capture.Event {
	q := f.queue
	f.queue = nil
	return q
}

// Destroy sends the destructor and stops routing events to the frame
func (f *ExportDmabufFrame) Destroy() error {
	err := sendDestructor(f, opFrameDestroy)
	f.Context().Unregister(f)
	return err
}

// Dispatch decodes one event for this frame
func (f *ExportDmabufFrame) Dispatch(opcode uint32, fd int, data []byte) {
	ev, err := decodeFrameEvent(opcode, fd, data)
	if err != nil {
		if f.report != nil {
			f.report(fmt.Errorf("%w: %s %d: %v", capture.ErrProtocolViolation, ExportDmabufFrameInterface, f.ID(), err))
		}
		return
	}
	f.queue = append(f.queue, ev)
}

// decodeFrameEvent turns a raw frame event into a capture.Event. The
// descriptor of an object event becomes a capture.Handle here and nowhere
// else; it is closed if the message is malformed. A descriptor attached to any
// other event is closed.
func decodeFrameEvent(opcode uint32, fd int, data []byte) (capture.Event, error) {
	if opcode != evFrameObject {
		closeStray(fd)
	}

	switch opcode {
	case evFrameFrame:
		if err := need(data, 10); err != nil {
			return nil, fmt.Errorf("frame event: %w", err)
		}
		var e capture.FrameEvent
		l := 0
		for _, dst := range []*uint32{
			&e.Width, &e.Height, &e.OffsetX, &e.OffsetY,
			&e.BufferFlags, &e.Flags, &e.Format,
			&e.ModHigh, &e.ModLow, &e.NumObjects,
		} {
			*dst = client.Uint32(data[l : l+4])
			l += 4
		}
		return e, nil

	case evFrameObject:
		if err := need(data, 5); err != nil {
			closeStray(fd)
			return nil, fmt.Errorf("object event: %w", err)
		}
		h, err := capture.AdoptHandle(fd)
		if err != nil {
			return nil, fmt.Errorf("object event: %w", err)
		}
		var e capture.ObjectEvent
		l := 0
		e.Index = client.Uint32(data[l : l+4])
		l += 4
		e.Handle = h
		e.Size = client.Uint32(data[l : l+4])
		l += 4
		e.Offset = client.Uint32(data[l : l+4])
		l += 4
		e.Stride = client.Uint32(data[l : l+4])
		l += 4
		e.PlaneIndex = client.Uint32(data[l : l+4])
		return e, nil

	case evFrameReady:
		if err := need(data, 3); err != nil {
			return nil, fmt.Errorf("ready event: %w", err)
		}
		return capture.ReadyEvent{
			TvSecHi: client.Uint32(data[0:4]),
			TvSecLo: client.Uint32(data[4:8]),
			TvNsec:  client.Uint32(data[8:12]),
		}, nil

	case evFrameCancel:
		if err := need(data, 1); err != nil {
			return nil, fmt.Errorf("cancel event: %w", err)
		}
		return capture.CancelEvent{Reason: client.Uint32(data[0:4])}, nil
	}

	return nil, fmt.Errorf("unknown opcode %d", opcode)
}

func need(data []byte, words int) error {
	if len(data) < words*4 {
		return fmt.Errorf("payload is %d bytes, want %d", len(data), words*4)
	}
	return nil
}

func closeStray(fd int) {
	if fd < 0 {
		return
	}
	if h, err := capture.AdoptHandle(fd); err == nil {
		_ = h.Close()
	}
}

// sendDestructor writes a request with no arguments
func sendDestructor(p client.Proxy, opcode uint32) error {
	const reqLen = 8
	var req [reqLen]byte
	client.PutUint32(req[0:4], p.ID())
	client.PutUint32(req[4:8], uint32(reqLen<<16|opcode&0x0000ffff))
	if err := p.Context().WriteMsg(req[:], nil); err != nil {
		return fmt.Errorf("%w: destroy object %d: %v", ErrConnection, p.ID(), err)
	}
	return nil
}
