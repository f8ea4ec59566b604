package capture

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newTestHandle adopts the read end of a fresh pipe. Handles still open at
// the end of the test are closed by cleanup.
func newTestHandle(t *testing.T) *Handle {
	t.Helper()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	require.NoError(t, unix.Close(fds[1]))

	h, err := AdoptHandle(fds[0])
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func fdIsOpen(fd int) bool {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	return err == nil
}

func frameEvent(numObjects uint32) FrameEvent {
	return FrameEvent{
		Width:      640,
		Height:     480,
		Format:     875713089,
		NumObjects: numObjects,
	}
}

func objectEvent(t *testing.T, index uint32) ObjectEvent {
	return ObjectEvent{
		Index:      index,
		Handle:     newTestHandle(t),
		Size:       640 * 480 * 4,
		Offset:     0,
		Stride:     640 * 4,
		PlaneIndex: index,
	}
}

func requestedFrame(t *testing.T, id uint32) *Frame {
	t.Helper()
	f := NewFrame(id)
	require.NoError(t, f.MarkRequested())
	return f
}
