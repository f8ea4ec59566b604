package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAdoptHandleRejectsNegative(t *testing.T) {
	h, err := AdoptHandle(-1)
	assert.Error(t, err)
	assert.Nil(t, h)
}

func TestHandleClose(t *testing.T) {
	h := newTestHandle(t)
	fd := h.Fd()

	assert.True(t, h.IsOpen())
	require.NoError(t, h.Close())

	assert.False(t, h.IsOpen())
	assert.Equal(t, -1, h.Fd())
	assert.False(t, fdIsOpen(fd))

	assert.ErrorIs(t, h.Close(), ErrHandleClosed)
}

func TestHandleRelease(t *testing.T) {
	h := newTestHandle(t)
	want := h.Fd()

	fd, err := h.Release()
	require.NoError(t, err)
	defer unix.Close(fd)

	assert.Equal(t, want, fd)
	assert.True(t, fdIsOpen(fd), "release must not close the descriptor")
	assert.False(t, h.IsOpen())
	assert.ErrorIs(t, h.Close(), ErrHandleClosed)

	_, err = h.Release()
	assert.ErrorIs(t, err, ErrHandleClosed)
}

func TestHandleFile(t *testing.T) {
	h := newTestHandle(t)
	fd := h.Fd()

	f, err := h.File("dmabuf")
	require.NoError(t, err)
	assert.Equal(t, uintptr(fd), f.Fd())
	assert.Equal(t, "dmabuf", f.Name())
	require.NoError(t, f.Close())

	_, err = h.File("again")
	assert.ErrorIs(t, err, ErrHandleClosed)
}

func TestNilHandle(t *testing.T) {
	var h *Handle
	assert.Equal(t, -1, h.Fd())
	assert.False(t, h.IsOpen())
	assert.ErrorIs(t, h.Close(), ErrHandleClosed)
	assert.Equal(t, "fd(closed)", h.String())
}
