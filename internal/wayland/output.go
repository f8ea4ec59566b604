package wayland

import (
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// wl_output.mode flags
const outputModeCurrent = 0x1

// OutputInfo contains information about a Wayland output (monitor)
type OutputInfo struct {
	Name        string // registry name of the global
	Connector   string // wl_output.name, e.g. "DP-1" (v4)
	Description string
	Make        string
	Model       string
	X           int32
	Y           int32
	Width       int32
	Height      int32
	Refresh     int32 // mHz
	Scale       int32
	Transform   int32
}

// Output is a bound wl_output
type Output struct {
	proxy   *client.Output
	name    uint32
	version uint32
	info    OutputInfo
}

func newOutput(ctx *client.Context, name, version uint32) *Output {
	o := &Output{
		proxy:   client.NewOutput(ctx),
		name:    name,
		version: version,
		info:    OutputInfo{Name: fmt.Sprint(name), Scale: 1},
	}

	o.proxy.SetGeometryHandler(func(e client.OutputGeometryEvent) {
		o.info.X = e.X
		o.info.Y = e.Y
		o.info.Make = e.Make
		o.info.Model = e.Model
		o.info.Transform = e.Transform
	})
	o.proxy.SetModeHandler(func(e client.OutputModeEvent) {
		if e.Flags&outputModeCurrent == 0 {
			return
		}
		o.info.Width = e.Width
		o.info.Height = e.Height
		o.info.Refresh = e.Refresh
	})
	o.proxy.SetScaleHandler(func(e client.OutputScaleEvent) {
		o.info.Scale = e.Factor
	})
	o.proxy.SetNameHandler(func(e client.OutputNameEvent) {
		o.info.Connector = e.Name
	})
	o.proxy.SetDescriptionHandler(func(e client.OutputDescriptionEvent) {
		o.info.Description = e.Description
	})

	return o
}

// ID is the client-side object id used on the wire
func (o *Output) ID() uint32 {
	return o.proxy.ID()
}

// RegistryName is the global name the output was bound from
func (o *Output) RegistryName() uint32 {
	return o.name
}

// Info returns what the compositor reported about the output so far.
// Values arrive with the round trip following the bind.
func (o *Output) Info() OutputInfo {
	return o.info
}

// Release destroys the output proxy. wl_output.release exists from version 3;
// older bindings are only forgotten locally.
func (o *Output) Release() error {
	if o.version >= 3 {
		return o.proxy.Release()
	}
	o.proxy.Context().Unregister(o.proxy)
	return nil
}
