package driftfs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// writeFile creates path with the given content through the stream API.
func writeFile(t *testing.T, sess *Session, path, content string) {
	t.Helper()
	f, err := sess.Open(path, "wb")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// readFile returns the full content of path.
func readFile(t *testing.T, sess *Session, path string) string {
	t.Helper()
	f, err := sess.Open(path, "rb")
	require.NoError(t, err)
	defer f.Close()
	data, err := f.ReadAll()
	require.NoError(t, err)
	return string(data)
}

func TestOpenReadMissing(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	_, err := sess.Open("/missing.txt", "rb")
	require.Error(t, err)
	assert.True(t, fserrors.IsNotFound(err))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestOpenWriteTruncates(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "old content")

	writeFile(t, sess, "/f.txt", "new")
	assert.Equal(t, "new", readFile(t, sess, "/f.txt"))
}

func TestOpenAppend(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/log.txt", "one\n")

	f, err := sess.Open("/log.txt", "ab")
	require.NoError(t, err)
	assert.Equal(t, int64(4), f.Tell(), "append opens at end of file")
	_, err = f.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, "one\ntwo\n", readFile(t, sess, "/log.txt"))
}

func TestOpenAppendCreatesMissing(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	f, err := sess.Open("/fresh.txt", "ab")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ok, err := sess.Exists("/fresh.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenExclusive(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	f, err := sess.Open("/once.txt", "xb")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = sess.Open("/once.txt", "xb")
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeAlreadyExists, fserrors.CodeOf(err))
	assert.True(t, errors.Is(err, fs.ErrExist))
}

func TestOpenDirectory(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	require.NoError(t, sess.Mkdir("/dir", DefaultDirMode))

	_, err := sess.Open("/dir", "rb")
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeIsDirectory, fserrors.CodeOf(err))
}

func TestOpenBadModeBeforeNativeCall(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	_, err := sess.Open("/f.txt", "r+")
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeUnsupportedMode, fserrors.CodeOf(err))
	assert.Zero(t, fake.Calls["stat"])
	assert.Zero(t, fake.Calls["open"])
}

func TestOpenUnknownEncoding(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	_, err := sess.Open("/f.txt", "rt", WithEncoding("no-such-charset"))
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeBadEncoding, fserrors.CodeOf(err))
	assert.Zero(t, fake.Calls["open"])
}

func TestOpenNonASCIICompatibleEncoding(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	for _, name := range []string{"utf-16", "utf-16be", "utf-16le", "utf-32"} {
		_, err := sess.Open("/f.txt", "rt", WithEncoding(name))
		require.Error(t, err, "encoding %q", name)
		assert.Equal(t, fserrors.ErrCodeBadEncoding, fserrors.CodeOf(err), "encoding %q", name)
	}
	assert.Zero(t, fake.Calls["open"])
}

func TestOpenCloseAllModes(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "seed")

	for _, mode := range []string{"r", "rb", "rt", "w", "wb", "wt", "a", "ab", "at"} {
		f, err := sess.Open("/f.txt", mode)
		require.NoError(t, err, "mode %q", mode)
		require.NoError(t, f.Close(), "mode %q", mode)
	}
	for i, mode := range []string{"x", "xb", "xt"} {
		f, err := sess.Open(fmt.Sprintf("/new-%d.txt", i), mode)
		require.NoError(t, err, "mode %q", mode)
		require.NoError(t, f.Close(), "mode %q", mode)
	}
	assert.Zero(t, fake.OpenFDs())
}

func TestOpenWriteMissingParent(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	_, err := sess.Open("/no/such/dir/f.txt", "wb")
	require.Error(t, err)
	assert.True(t, fserrors.IsNotFound(err))
}
