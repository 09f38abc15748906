package driftfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs-go/internal/native"
	"github.com/driftfs/driftfs-go/internal/native/nativetest"
	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// newTestSession registers an in-memory fake as the native library and
// mounts a volume on it. The fake is returned so tests can seed files and
// tune its failure knobs.
func newTestSession(t *testing.T, cfg *SessionConfig) (*Session, *nativetest.Fake) {
	t.Helper()
	fake := nativetest.New()
	native.Register(fake)
	t.Cleanup(func() { native.Register(nil) })

	sess, err := OpenSession("test-vol", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess, fake
}

func TestOpenSession(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	assert.Equal(t, "test-vol", sess.Name())
	assert.Equal(t, DefaultMetaURL, sess.Config().Meta)
	assert.Equal(t, 1, fake.Calls["mount"])
	assert.NotNil(t, sess.MetricsRegistry())
}

func TestOpenSessionEmptyName(t *testing.T) {
	native.Register(nativetest.New())
	t.Cleanup(func() { native.Register(nil) })

	_, err := OpenSession("", nil)
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeMountFailed, fserrors.CodeOf(err))
}

func TestOpenSessionNoLibrary(t *testing.T) {
	native.Register(nil)

	_, err := OpenSession("vol", nil)
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeNotInitialized, fserrors.CodeOf(err))
}

func TestOpenSessionMountFailure(t *testing.T) {
	fake := nativetest.New()
	fake.MountErr = native.EIO
	native.Register(fake)
	t.Cleanup(func() { native.Register(nil) })

	_, err := OpenSession("vol", nil)
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeMountFailed, fserrors.CodeOf(err))

	var e *fserrors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, int(native.EIO), e.Errno)
}

func TestSessionCloseIdempotent(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Equal(t, 1, fake.Calls["umount"])
}

func TestSessionOpsAfterClose(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	require.NoError(t, sess.Close())

	_, err := sess.Stat("/x")
	assert.Equal(t, fserrors.ErrCodeSessionClosed, fserrors.CodeOf(err))

	_, err = sess.Open("/x", "rb")
	assert.Equal(t, fserrors.ErrCodeSessionClosed, fserrors.CodeOf(err))

	err = sess.Mkdir("/x", DefaultDirMode)
	assert.Equal(t, fserrors.ErrCodeSessionClosed, fserrors.CodeOf(err))
}

func TestSessionCloseBusy(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	f, err := sess.Open("/busy.txt", "wb")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.OpenFiles())

	err = sess.Close()
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeSessionBusy, fserrors.CodeOf(err))

	// The session is still usable after a refused close.
	ok, err := sess.Exists("/busy.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.Close())
	assert.Equal(t, 0, sess.OpenFiles())
	require.NoError(t, sess.Close())
	assert.Equal(t, 0, fake.OpenFDs())
}

func TestSessionReadOnly(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ReadOnly = true
	sess, fake := newTestSession(t, cfg)

	_, err := sess.Open("/x", "wb")
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodePermissionDenied, fserrors.CodeOf(err))
	assert.Zero(t, fake.Calls["create"], "rejected before any native call")
}
