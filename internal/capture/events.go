package capture

// Event is one zwlr_export_dmabuf_frame_v1 event decoded from the wire
type Event interface {
	eventName() string
}

// FrameEvent carries the frame description; it precedes every object
type FrameEvent struct {
	Width       uint32
	Height      uint32
	OffsetX     uint32
	OffsetY     uint32
	BufferFlags uint32
	Flags       uint32
	Format      uint32
	ModHigh     uint32
	ModLow      uint32
	NumObjects  uint32
}

// ObjectEvent delivers one DMA-BUF object. The Handle is owned by whoever
// holds the event until it is applied to a Frame.
type ObjectEvent struct {
	Index      uint32
	Handle     *Handle
	Size       uint32
	Offset     uint32
	Stride     uint32
	PlaneIndex uint32
}

// ReadyEvent ends a successful capture with the presentation timestamp
type ReadyEvent struct {
	TvSecHi uint32
	TvSecLo uint32
	TvNsec  uint32
}

// CancelEvent ends a failed capture
type CancelEvent struct {
	Reason uint32
}

func (FrameEvent) eventName() string  { return "frame" }
func (ObjectEvent) eventName() string { return "object" }
func (ReadyEvent) eventName() string  { return "ready" }
func (CancelEvent) eventName() string { return "cancel" }

// discardEvent closes any descriptor an unapplied event still carries
func discardEvent(ev Event) {
	if obj, ok := ev.(ObjectEvent); ok && obj.Handle != nil {
		_ = obj.Handle.Close()
	}
}
