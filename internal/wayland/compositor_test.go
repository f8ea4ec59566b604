//go:build linux

package wayland

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bnema/waydmabuf/internal/capture"
	"github.com/bnema/waydmabuf/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// serverEvent is one scripted event sent on the frame object
type serverEvent struct {
	opcode uint16
	args   []uint32
	pipe   bool // attach the read end of a fresh pipe
}

// fakeCompositor speaks just enough of the wire protocol for one capture:
// wl_display.sync/get_registry, wl_registry.bind, capture_output and the
// frame destructor.
type fakeCompositor struct {
	t       *testing.T
	path    string
	ln      *net.UnixListener
	globals []registry.Advertisement
	script  []serverEvent
	fatal   bool // answer capture_output with wl_display.error

	mu         sync.Mutex
	conn       *net.UnixConn
	bound      map[uint32]string // object id -> interface
	captures   [][3]uint32       // frame id, overlay, output id
	destroyed  []uint32
	writeEnds  []int
	done       chan struct{}
	registryID uint32
	managerID  uint32
}

func startFakeCompositor(t *testing.T, globals []registry.Advertisement, script []serverEvent) *fakeCompositor {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wayland-test")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)

	fc := &fakeCompositor{
		t:       t,
		path:    path,
		ln:      ln,
		globals: globals,
		script:  script,
		bound:   make(map[uint32]string),
		done:    make(chan struct{}),
	}
	t.Cleanup(func() {
		ln.Close()
		fc.mu.Lock()
		if fc.conn != nil {
			fc.conn.Close()
		}
		fc.mu.Unlock()
		<-fc.done
		for _, w := range fc.writeEnds {
			unix.Close(w)
		}
	})

	go fc.serve()
	return fc
}

func (fc *fakeCompositor) serve() {
	defer close(fc.done)

	conn, err := fc.ln.AcceptUnix()
	if err != nil {
		return
	}
	defer conn.Close()

	fc.mu.Lock()
	fc.conn = conn
	fc.mu.Unlock()

	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		sender := binary.LittleEndian.Uint32(header[0:4])
		word := binary.LittleEndian.Uint32(header[4:8])
		opcode := uint16(word & 0xffff)
		body := make([]byte, int(word>>16)-8)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		if err := fc.handle(conn, sender, opcode, body); err != nil {
			fc.t.Errorf("fake compositor: %v", err)
			return
		}
	}
}

func (fc *fakeCompositor) handle(conn *net.UnixConn, sender uint32, opcode uint16, body []byte) error {
	u32 := func(i int) uint32 { return binary.LittleEndian.Uint32(body[i*4 : i*4+4]) }

	fc.mu.Lock()
	defer fc.mu.Unlock()

	switch {
	case sender == 1 && opcode == 0: // wl_display.sync
		return send(conn, u32(0), 0, []uint32{0}, -1) // callback.done(callback_data)

	case sender == 1 && opcode == 1: // wl_display.get_registry
		fc.registryID = u32(0)
		for _, g := range fc.globals {
			if err := sendGlobal(conn, fc.registryID, g); err != nil {
				return err
			}
		}
		return nil

	case sender == fc.registryID && opcode == 0: // wl_registry.bind
		strLen := int(u32(1))
		iface := strings.TrimRight(string(body[8:8+strLen]), "\x00")
		rest := body[8+pad4(strLen):]
		newID := binary.LittleEndian.Uint32(rest[4:8])
		fc.bound[newID] = iface
		if iface == ExportDmabufManagerInterface {
			fc.managerID = newID
		}
		return nil

	case sender == fc.managerID && opcode == opManagerCaptureOutput:
		frameID := u32(0)
		fc.captures = append(fc.captures, [3]uint32{frameID, u32(1), u32(2)})
		fc.bound[frameID] = ExportDmabufFrameInterface
		if fc.fatal {
			msg := "invalid output"
			return send(conn, 1, 0, append([]uint32{frameID, 0}, stringWords(msg)...), -1)
		}
		for _, ev := range fc.script {
			fd := -1
			if ev.pipe {
				fds := make([]int, 2)
				if err := unix.Pipe(fds); err != nil {
					return err
				}
				fd = fds[0]
				fc.writeEnds = append(fc.writeEnds, fds[1])
			}
			err := send(conn, frameID, ev.opcode, ev.args, fd)
			if fd >= 0 {
				unix.Close(fd)
			}
			if err != nil {
				return err
			}
		}
		return nil

	case fc.bound[sender] == ExportDmabufFrameInterface && opcode == opFrameDestroy:
		fc.destroyed = append(fc.destroyed, sender)
		return nil
	}

	// wl_output.release and anything else needs no answer
	return nil
}

func send(conn *net.UnixConn, id uint32, opcode uint16, args []uint32, fd int) error {
	size := 8 + 4*len(args)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(size)<<16|uint32(opcode))
	for i, a := range args {
		binary.LittleEndian.PutUint32(buf[8+i*4:], a)
	}

	var oob []byte
	if fd >= 0 {
		oob = unix.UnixRights(fd)
	}
	_, _, err := conn.WriteMsgUnix(buf, oob, nil)
	return err
}

func sendGlobal(conn *net.UnixConn, registryID uint32, g registry.Advertisement) error {
	args := []uint32{g.Name}
	args = append(args, stringWords(g.Interface)...)
	args = append(args, g.Version)
	return send(conn, registryID, 0, args, -1)
}

// stringWords encodes a wire string: length with NUL, then padded bytes
func stringWords(s string) []uint32 {
	n := len(s) + 1
	raw := make([]byte, pad4(n))
	copy(raw, s)
	out := []uint32{uint32(n)}
	for i := 0; i < len(raw); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(raw[i:i+4]))
	}
	return out
}

func pad4(n int) int {
	return (n + 3) &^ 3
}

func (fc *fakeCompositor) writeEndsClosedForReading() []bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	var closed []bool
	for _, w := range fc.writeEnds {
		_, err := unix.Write(w, []byte{0})
		closed = append(closed, errors.Is(err, unix.EPIPE))
	}
	return closed
}

var scenarioGlobals = []registry.Advertisement{
	{Name: 1, Interface: "wl_compositor", Version: 4},
	{Name: 10, Interface: ExportDmabufManagerInterface, Version: 1},
	{Name: 20, Interface: registry.OutputInterface, Version: 3},
	{Name: 21, Interface: registry.OutputInterface, Version: 3},
}

func frameArgs(numObjects uint32) []uint32 {
	// width, height, offset_x, offset_y, buffer_flags, flags, format, mod_high, mod_low, num_objects
	return []uint32{640, 480, 0, 0, 0, 0, 875713089, 0, 0, numObjects}
}

func objectArgs(index uint32) []uint32 {
	// index, size, offset, stride, plane_index
	return []uint32{index, 640 * 480 * 4, 0, 640 * 4, index}
}

func setupCapture(t *testing.T, fc *fakeCompositor) (*Client, *capture.Session, *Output) {
	t.Helper()

	c, err := Connect(fc.path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	mgrAd, err := c.Globals().ResolveLast(ExportDmabufManagerInterface)
	require.NoError(t, err)
	outAd, err := c.Globals().ResolveLast(registry.OutputInterface)
	require.NoError(t, err)
	assert.Equal(t, uint32(21), outAd.Name, "last advertised output is selected")

	mgr, err := c.BindExportManager(mgrAd)
	require.NoError(t, err)
	out, err := c.BindOutput(outAd)
	require.NoError(t, err)

	sess, err := capture.NewSession(c, mgr, out, capture.Options{OverlayCursor: true, MaxRoundtrips: 4})
	require.NoError(t, err)
	return c, sess, out
}

func TestCaptureAgainstCompositorReady(t *testing.T) {
	fc := startFakeCompositor(t, scenarioGlobals, []serverEvent{
		{opcode: evFrameFrame, args: frameArgs(2)},
		{opcode: evFrameObject, args: objectArgs(0), pipe: true},
		{opcode: evFrameObject, args: objectArgs(1), pipe: true},
		{opcode: evFrameReady, args: []uint32{0, 1700000000, 0}},
	})
	c, sess, out := setupCapture(t, fc)

	res, err := sess.CaptureFrame(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint32(640), res.Metadata.Width)
	assert.Equal(t, uint32(480), res.Metadata.Height)
	assert.Equal(t, "AR24", res.Metadata.Format.String())
	require.Len(t, res.Objects, 2)
	assert.NotEqual(t, res.Objects[0].Handle.Fd(), res.Objects[1].Handle.Fd())
	for _, o := range res.Objects {
		assert.True(t, o.Handle.IsOpen())
	}
	assert.Equal(t, []bool{false, false}, fc.writeEndsClosedForReading(), "caller holds both buffers")

	require.NoError(t, res.Close())
	assert.Equal(t, []bool{true, true}, fc.writeEndsClosedForReading())

	// Flush the frame destructor before inspecting the compositor side
	require.NoError(t, c.Roundtrip())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Len(t, fc.captures, 1)
	assert.Equal(t, uint32(1), fc.captures[0][1], "overlay cursor requested")
	assert.Equal(t, out.ID(), fc.captures[0][2])
	assert.Equal(t, []uint32{fc.captures[0][0]}, fc.destroyed)
}

func TestCaptureAgainstCompositorCancelled(t *testing.T) {
	fc := startFakeCompositor(t, scenarioGlobals, []serverEvent{
		{opcode: evFrameFrame, args: frameArgs(2)},
		{opcode: evFrameObject, args: objectArgs(0), pipe: true},
		{opcode: evFrameCancel, args: []uint32{1}},
	})
	_, sess, _ := setupCapture(t, fc)

	res, err := sess.CaptureFrame(context.Background())
	assert.Nil(t, res)

	var cerr *capture.CancelledError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, capture.CancelPermanent, cerr.Reason)
	assert.Equal(t, []bool{true}, fc.writeEndsClosedForReading(), "accumulated buffer is closed")
}

func TestCaptureAgainstCompositorDisplayError(t *testing.T) {
	fc := startFakeCompositor(t, scenarioGlobals, nil)
	fc.mu.Lock()
	fc.fatal = true
	fc.mu.Unlock()
	_, sess, _ := setupCapture(t, fc)

	_, err := sess.CaptureFrame(context.Background())
	require.ErrorIs(t, err, capture.ErrProtocolViolation)
	assert.Contains(t, err.Error(), "invalid output")
}

func TestBindRejectedLocally(t *testing.T) {
	globals := append([]registry.Advertisement{}, scenarioGlobals...)
	globals = append(globals, registry.Advertisement{Name: 30, Interface: registry.OutputInterface, Version: 9})
	fc := startFakeCompositor(t, globals, nil)

	c, err := Connect(fc.path)
	require.NoError(t, err)
	defer c.Close()

	outAd, err := c.Globals().ResolveLast(registry.OutputInterface)
	require.NoError(t, err)

	_, err = c.BindOutput(outAd)
	assert.ErrorIs(t, err, registry.ErrBindRejected)

	mgrAd, err := c.Globals().ResolveLast(ExportDmabufManagerInterface)
	require.NoError(t, err)
	_, err = c.BindOutput(mgrAd)
	assert.ErrorIs(t, err, registry.ErrBindRejected, "interface mismatch")
}

func TestConnectEnumeratesGlobals(t *testing.T) {
	fc := startFakeCompositor(t, scenarioGlobals, nil)

	c, err := Connect(fc.path)
	require.NoError(t, err)
	defer c.Close()

	var got []registry.Advertisement
	for a := range c.Globals().Enumerate() {
		got = append(got, a)
	}
	assert.Equal(t, scenarioGlobals, got)

	_, err = c.Globals().ResolveLast("zwlr_screencopy_manager_v1")
	assert.ErrorIs(t, err, registry.ErrCapabilityMissing)
}

func TestBindReachesCompositor(t *testing.T) {
	fc := startFakeCompositor(t, scenarioGlobals, nil)

	c, err := Connect(fc.path)
	require.NoError(t, err)
	defer c.Close()

	mgrAd, err := c.Globals().ResolveLast(ExportDmabufManagerInterface)
	require.NoError(t, err)
	mgr, err := c.BindExportManager(mgrAd)
	require.NoError(t, err)
	outAd, err := c.Globals().ResolveLast(registry.OutputInterface)
	require.NoError(t, err)
	out, err := c.BindOutput(outAd)
	require.NoError(t, err)

	require.NoError(t, c.Roundtrip())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, ExportDmabufManagerInterface, fc.bound[mgr.ID()])
	assert.Equal(t, registry.OutputInterface, fc.bound[out.ID()])
	assert.Equal(t, mgr.ID(), fc.managerID)
}
