// Package wayland connects to the compositor with go-wayland, enumerates and
// binds globals, and provides the round trip the capture session pumps.
package wayland

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/waydmabuf/internal/capture"
	"github.com/bnema/waydmabuf/internal/logger"
	"github.com/bnema/waydmabuf/internal/registry"
	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// ErrConnection marks failures to reach or talk to the compositor
var ErrConnection = errors.New("wayland connection error")

// Client owns one connection. It is driven from a single goroutine; nothing
// here is safe for concurrent use.
type Client struct {
	display  *client.Display
	ctx      *client.Context
	registry *client.Registry
	globals  *registry.Registry
	versions registry.Versions

	// fatal is set by event handlers and returned by the next Roundtrip
	fatal error

	outputs map[uint32]*Output
}

// Connect opens the compositor socket and enumerates its globals. An empty
// name uses WAYLAND_DISPLAY.
func Connect(name string) (*Client, error) {
	socket, err := SocketPath(name)
	if err != nil {
		return nil, err
	}

	display, err := client.Connect(socket)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Wayland display %s: %v", ErrConnection, socket, err)
	}

	c := &Client{
		display:  display,
		ctx:      display.Context(),
		globals:  registry.New(),
		versions: registry.Supported,
		outputs:  make(map[uint32]*Output),
	}
	display.SetErrorHandler(c.handleDisplayError)

	reg, err := display.GetRegistry()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: failed to get registry: %v", ErrConnection, err)
	}
	c.registry = reg

	// Handlers go in before the first round trip so no global is missed
	reg.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		c.globals.Add(registry.Advertisement{Name: e.Name, Interface: e.Interface, Version: e.Version})
		logger.Debug("global advertised", "name", e.Name, "interface", e.Interface, "version", e.Version)
	})
	reg.SetGlobalRemoveHandler(func(e client.RegistryGlobalRemoveEvent) {
		c.globals.Remove(e.Name)
		logger.Debug("global removed", "name", e.Name)
	})

	if err := c.Roundtrip(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to get initial globals: %w", err)
	}

	logger.Debug("connected", "socket", socket, "globals", c.globals.Len())
	return c, nil
}

// SocketPath resolves the compositor socket. Relative names live in
// XDG_RUNTIME_DIR, as libwayland does it.
func SocketPath(name string) (string, error) {
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
	}
	if name == "" {
		name = "wayland-0"
	}
	if filepath.IsAbs(name) {
		return name, nil
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("%w: XDG_RUNTIME_DIR is not set", ErrConnection)
	}
	return filepath.Join(runtimeDir, name), nil
}

// Globals returns the advertisements received so far
func (c *Client) Globals() *registry.Registry {
	return c.globals
}

// Roundtrip flushes queued requests and dispatches events until the
// compositor answers a wl_display.sync. A display error or a malformed event
// received meanwhile is returned as a fatal error.
func (c *Client) Roundtrip() error {
	if c.fatal != nil {
		return c.fatal
	}

	cb, err := c.display.Sync()
	if err != nil {
		return fmt.Errorf("%w: sync: %v", ErrConnection, err)
	}
	defer c.ctx.Unregister(cb)

	done := false
	cb.SetDoneHandler(func(client.CallbackDoneEvent) {
		done = true
	})

	for !done {
		if err := c.ctx.Dispatch(); err != nil {
			return fmt.Errorf("%w: dispatch: %v", ErrConnection, err)
		}
		if c.fatal != nil {
			return c.fatal
		}
	}
	return nil
}

// BindExportManager binds a zwlr_export_dmabuf_manager_v1 advertisement.
// The bind is not acknowledged; a rejection surfaces on a later round trip.
func (c *Client) BindExportManager(a registry.Advertisement) (*ExportDmabufManager, error) {
	version, err := c.checkBind(a, ExportDmabufManagerInterface)
	if err != nil {
		return nil, err
	}

	m := NewExportDmabufManager(c.ctx, c.reportFatal)
	if err := c.registry.Bind(a.Name, a.Interface, version, m); err != nil {
		c.ctx.Unregister(m)
		return nil, fmt.Errorf("%w: bind %s: %v", ErrConnection, a, err)
	}

	logger.Debug("bound global", "interface", a.Interface, "name", a.Name, "version", version, "id", m.ID())
	return m, nil
}

// BindOutput binds a wl_output advertisement and starts tracking its
// geometry, mode and name.
func (c *Client) BindOutput(a registry.Advertisement) (*Output, error) {
	version, err := c.checkBind(a, registry.OutputInterface)
	if err != nil {
		return nil, err
	}

	out := newOutput(c.ctx, a.Name, version)
	if err := c.registry.Bind(a.Name, a.Interface, version, out.proxy); err != nil {
		c.ctx.Unregister(out.proxy)
		return nil, fmt.Errorf("%w: bind %s: %v", ErrConnection, a, err)
	}
	c.outputs[a.Name] = out

	logger.Debug("bound global", "interface", a.Interface, "name", a.Name, "version", version, "id", out.ID())
	return out, nil
}

// Outputs returns the outputs bound through this client
func (c *Client) Outputs() map[uint32]*Output {
	return c.outputs
}

func (c *Client) checkBind(a registry.Advertisement, iface string) (uint32, error) {
	if a.Interface != iface {
		return 0, fmt.Errorf("%w: %s is not %s", registry.ErrBindRejected, a, iface)
	}
	return c.versions.Check(a)
}

func (c *Client) handleDisplayError(e client.DisplayErrorEvent) {
	var id uint32
	if e.ObjectId != nil {
		id = e.ObjectId.ID()
	}
	c.reportFatal(fmt.Errorf("%w: compositor error on object %d, code %d: %s",
		capture.ErrProtocolViolation, id, e.Code, e.Message))
}

// reportFatal keeps the first fatal error; later ones are logged only
func (c *Client) reportFatal(err error) {
	if c.fatal == nil {
		c.fatal = err
		return
	}
	logger.Warn("additional fatal error", "err", err)
}

// Close disconnects from the compositor
func (c *Client) Close() error {
	for name, out := range c.outputs {
		if err := out.Release(); err != nil {
			logger.Debug("releasing output", "name", name, "err", err)
		}
	}
	c.outputs = nil

	if c.ctx != nil {
		err := c.ctx.Close()
		c.ctx = nil
		c.display = nil
		c.registry = nil
		return err
	}
	return nil
}
