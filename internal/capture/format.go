package capture

import (
	"fmt"
	"strings"
)

// Format is a DRM fourcc pixel format code
type Format uint32

// String renders the four character code, e.g. 875713089 is "AR24"
func (f Format) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("0x%08x", uint32(f))
		}
	}
	return strings.TrimRight(string(b), " ")
}

// Modifier is a DRM format modifier describing buffer layout
type Modifier uint64

const (
	ModifierLinear  Modifier = 0
	ModifierInvalid Modifier = 0x00ffffffffffffff
)

// ModifierFromHalves joins the two 32-bit halves sent on the wire. Both halves
// are unsigned so nothing is sign extended.
func ModifierFromHalves(high, low uint32) Modifier {
	return Modifier(uint64(high)<<32 | uint64(low))
}

// Halves splits the modifier back into its wire representation
func (m Modifier) Halves() (high, low uint32) {
	return uint32(uint64(m) >> 32), uint32(uint64(m))
}

func (m Modifier) String() string {
	switch m {
	case ModifierLinear:
		return "linear"
	case ModifierInvalid:
		return "invalid"
	}
	return fmt.Sprintf("0x%016x", uint64(m))
}

// BufferFlags mirror zwp_linux_buffer_params_v1 flags
type BufferFlags uint32

const (
	BufferYInvert     BufferFlags = 1 << 0
	BufferInterlaced  BufferFlags = 1 << 1
	BufferBottomFirst BufferFlags = 1 << 2
)

func (f BufferFlags) String() string {
	return flagString(uint32(f), []string{"y_invert", "interlaced", "bottom_first"})
}

// FrameFlags are zwlr_export_dmabuf_frame_v1.flags
type FrameFlags uint32

// FrameTransient marks a frame whose buffers the compositor may reuse
const FrameTransient FrameFlags = 1 << 0

func (f FrameFlags) String() string {
	return flagString(uint32(f), []string{"transient"})
}

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
			v &^= 1 << i
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", v))
	}
	return strings.Join(parts, "|")
}

// CancelReason is the code carried by the cancel event
type CancelReason uint32

const (
	CancelTemporary CancelReason = 0
	CancelPermanent CancelReason = 1
	CancelResizing  CancelReason = 2
)

// Transient reports whether retrying the capture may succeed
func (r CancelReason) Transient() bool {
	return r == CancelTemporary
}

func (r CancelReason) String() string {
	switch r {
	case CancelTemporary:
		return "temporary"
	case CancelPermanent:
		return "permanent"
	case CancelResizing:
		return "resizing"
	}
	return fmt.Sprintf("reason(%d)", uint32(r))
}
