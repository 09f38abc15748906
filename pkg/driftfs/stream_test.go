package driftfs

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

func TestStreamRoundTrip(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	writeFile(t, sess, "/data.bin", "hello world")
	assert.Equal(t, "hello world", readFile(t, sess, "/data.bin"))
}

func TestStreamOverwriteInPlace(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	f, err := sess.Open("/f.txt", "wb")
	require.NoError(t, err)
	_, err = f.WriteString("hello world")
	require.NoError(t, err)

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = f.WriteString("hey")
	require.NoError(t, err)
	assert.Equal(t, int64(11), f.Size(), "overwrite does not shrink the file")
	require.NoError(t, f.Close())

	assert.Equal(t, "heylo world", readFile(t, sess, "/f.txt"))
}

func TestStreamReadAccumulatesShortReads(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	writeFile(t, sess, "/f.bin", "abcdefghij")
	fake.MaxRead = 3

	f, err := sess.Open("/f.bin", "rb")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 10)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n, "one Read call fills the buffer across short native reads")
	assert.Equal(t, "abcdefghij", string(buf))
}

func TestStreamReadEOF(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.bin", "xy")

	f, err := sess.Open("/f.bin", "rb")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 8)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "short count only at end of stream")

	for range 3 {
		n, err = f.Read(buf)
		assert.Zero(t, n)
		assert.Equal(t, io.EOF, err)
	}
}

func TestStreamWriteRetriesShortWrites(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	fake.MaxWrite = 2

	writeFile(t, sess, "/f.bin", "abcdefghij")
	assert.GreaterOrEqual(t, fake.Calls["write"], 5)
	assert.Equal(t, "abcdefghij", readFile(t, sess, "/f.bin"))
}

func TestStreamWriteStalledWriter(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	fake.AcceptLimit = 4

	f, err := sess.Open("/f.bin", "wb")
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("abcdefghij"))
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrCodeShortWrite, fserrors.CodeOf(err))
	assert.Equal(t, 4, n, "reports how much actually landed")
}

func TestStreamSeekTell(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "alpha\nbeta\ngamma")

	f, err := sess.Open("/f.txt", "rb")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(0), f.Tell())

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "alpha\n", string(line))
	assert.Equal(t, int64(6), f.Tell(), "position ignores buffered look-ahead")

	pos, err := f.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	pos, err = f.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(11), pos)
	rest, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "gamma", string(rest))

	pos, err = f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(16), pos)
	assert.Equal(t, int64(16), f.Tell())

	pos, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)
	line, err = f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "alpha\n", string(line))
}

func TestStreamSeekNegative(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "abc")

	f, err := sess.Open("/f.txt", "rb")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(-1, io.SeekStart)
	assert.Equal(t, fserrors.ErrCodeInvalidSeek, fserrors.CodeOf(err))

	_, err = f.Seek(-10, io.SeekEnd)
	assert.Equal(t, fserrors.ErrCodeInvalidSeek, fserrors.CodeOf(err))

	_, err = f.Seek(0, 99)
	assert.Equal(t, fserrors.ErrCodeInvalidSeek, fserrors.CodeOf(err))
}

func TestStreamReadLine(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "one\ntwo\nthree")

	f, err := sess.Open("/f.txt", "rb", WithBufferSize(2))
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	for {
		line, err := f.ReadLine()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, string(line))
	}
	assert.Equal(t, []string{"one\n", "two\n", "three"}, lines)

	_, err = f.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestStreamLinesIterator(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "a\nb\nc\n")

	f, err := sess.Open("/f.txt", "rb")
	require.NoError(t, err)
	defer f.Close()

	var got []string
	for line, err := range f.Lines() {
		require.NoError(t, err)
		got = append(got, line)
	}
	assert.Equal(t, []string{"a\n", "b\n", "c\n"}, got)

	// Early break leaves the stream usable at the consumed position.
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	for range f.Lines() {
		break
	}
	assert.Equal(t, int64(2), f.Tell())
}

func TestStreamReadAt(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.bin", "0123456789")

	f, err := sess.Open("/f.bin", "rb")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(buf))
	assert.Equal(t, int64(0), f.Tell(), "ReadAt does not move the position")

	n, err = f.ReadAt(buf, 8)
	assert.Equal(t, 2, n)
	assert.Equal(t, io.EOF, err)
}

func TestStreamTruncate(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	f, err := sess.Open("/f.bin", "wb")
	require.NoError(t, err)
	_, err = f.WriteString("0123456789")
	require.NoError(t, err)

	require.NoError(t, f.Truncate(4))
	pos, err := f.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos, "end seek follows the new length")
	require.NoError(t, f.Close())

	assert.Equal(t, "0123", readFile(t, sess, "/f.bin"))
}

func TestStreamModeEnforcement(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "data")

	r, err := sess.Open("/f.txt", "rb")
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Write([]byte("x"))
	assert.Equal(t, fserrors.ErrCodeUnsupportedMode, fserrors.CodeOf(err))
	assert.Equal(t, fserrors.ErrCodeUnsupportedMode, fserrors.CodeOf(r.Truncate(0)))

	w, err := sess.Open("/f.txt", "ab")
	require.NoError(t, err)
	defer w.Close()
	_, err = w.Read(make([]byte, 1))
	assert.Equal(t, fserrors.ErrCodeUnsupportedMode, fserrors.CodeOf(err))
	_, err = w.ReadLine()
	assert.Equal(t, fserrors.ErrCodeUnsupportedMode, fserrors.CodeOf(err))
}

func TestStreamClosed(t *testing.T) {
	sess, fake := newTestSession(t, nil)
	writeFile(t, sess, "/f.txt", "data")

	f, err := sess.Open("/f.txt", "rb")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close(), "second close is a no-op")
	assert.Equal(t, 1, fake.Calls["close"])

	_, err = f.Read(make([]byte, 1))
	assert.Equal(t, fserrors.ErrCodeStreamClosed, fserrors.CodeOf(err))
	_, err = f.Seek(0, io.SeekStart)
	assert.Equal(t, fserrors.ErrCodeStreamClosed, fserrors.CodeOf(err))
	assert.Equal(t, fserrors.ErrCodeStreamClosed, fserrors.CodeOf(f.Sync()))
	assert.True(t, fserrors.IsClosed(f.Flush()))
}

func TestStreamFlushSync(t *testing.T) {
	sess, fake := newTestSession(t, nil)

	f, err := sess.Open("/f.bin", "wb")
	require.NoError(t, err)
	_, err = f.WriteString("data")
	require.NoError(t, err)
	require.NoError(t, f.Flush())
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	assert.GreaterOrEqual(t, fake.Calls["flush"], 2, "explicit flush plus flush on close")
	assert.Equal(t, 1, fake.Calls["fsync"])
}

func TestStreamStat(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/f.bin", "12345")

	f, err := sess.Open("/f.bin", "rb")
	require.NoError(t, err)
	defer f.Close()

	st, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Size())
	assert.Equal(t, "f.bin", st.Name())
	assert.Equal(t, "/f.bin", f.Name())
	assert.Equal(t, "rb", f.Mode())
}

func TestStreamTextRoundTrip(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	f, err := sess.Open("/latin.txt", "wt", WithEncoding("latin1"))
	require.NoError(t, err)
	_, err = f.WriteString("héllo wörld")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// On the wire each accented character is a single latin-1 byte.
	raw := readFile(t, sess, "/latin.txt")
	assert.Len(t, raw, 11)
	assert.Equal(t, byte(0xE9), raw[1])

	g, err := sess.Open("/latin.txt", "rt", WithEncoding("latin1"))
	require.NoError(t, err)
	defer g.Close()
	text, err := g.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld", string(text))
}

func TestStreamTextDefaultUTF8(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/utf8.txt", "naïve\nrésumé\n")

	f, err := sess.Open("/utf8.txt", "rt")
	require.NoError(t, err)
	defer f.Close()

	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "naïve\n", string(line))
	assert.Equal(t, int64(7), f.Tell(), "position counts raw bytes, not runes")
}

func TestStreamTextRuneSplitAcrossFills(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	writeFile(t, sess, "/utf8.txt", "café!")

	f, err := sess.Open("/utf8.txt", "rt", WithBufferSize(2))
	require.NoError(t, err)
	defer f.Close()

	text, err := f.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "café!", string(text))

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "café!", string(buf[:n]))
}

func TestStreamTextSeekResetsDecoder(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	f, err := sess.Open("/latin.txt", "wt", WithEncoding("latin1"))
	require.NoError(t, err)
	_, err = f.WriteString("café")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	g, err := sess.Open("/latin.txt", "rt", WithEncoding("latin1"), WithBufferSize(2))
	require.NoError(t, err)
	defer g.Close()

	text, err := g.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "café", string(text))

	_, err = g.Seek(0, io.SeekStart)
	require.NoError(t, err)
	text, err = g.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "café", string(text))
}
