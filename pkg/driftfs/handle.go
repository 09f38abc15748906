package driftfs

import (
	"fmt"
	"io"

	"github.com/driftfs/driftfs-go/internal/native"
	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// fileHandle owns one native file descriptor. It is created by a
// successful native open and releases the descriptor exactly once, no
// matter how many close requests arrive or which error path abandons the
// owning File.
//
// The native client cannot seek relative to the end of a file, so the
// handle keeps a length ledger: the size observed at open time, advanced by
// writes and clamped by truncates through this handle. Concurrent writers
// on other handles can grow the file beyond the ledger, which mirrors the
// native client's own end-of-file semantics.
type fileHandle struct {
	sess     *Session
	fd       native.FD
	path     string
	writable bool
	length   int64
	closed   bool
}

// readRaw issues one native read at the descriptor cursor. A zero count
// means end of stream, not an error.
func (h *fileHandle) readRaw(p []byte) (int, error) {
	n, code := h.sess.lib.Read(h.sess.handle, h.fd, p)
	h.sess.observe("read", code)
	if code != native.OK {
		return 0, errnoErr("read", h.path, code)
	}
	h.sess.metrics.AddBytesRead(n)
	return n, nil
}

// preadRaw reads at an explicit offset without moving the cursor.
func (h *fileHandle) preadRaw(p []byte, off int64) (int, error) {
	n, code := h.sess.lib.Pread(h.sess.handle, h.fd, p, off)
	h.sess.observe("pread", code)
	if code != native.OK {
		return 0, errnoErr("pread", h.path, code)
	}
	h.sess.metrics.AddBytesRead(n)
	return n, nil
}

// writeAll writes the whole of p starting at the descriptor cursor,
// retrying short native writes. When the native client stops making
// progress without reporting an error, the local invariant is violated and
// SHORT_WRITE is returned; the partial write is never retried silently.
// start is the stream position of the first byte, used to advance the
// length ledger.
func (h *fileHandle) writeAll(p []byte, start int64) (int, error) {
	written := 0
	for written < len(p) {
		n, code := h.sess.lib.Write(h.sess.handle, h.fd, p[written:])
		h.sess.observe("write", code)
		if code != native.OK {
			h.noteWrite(start + int64(written))
			return written, errnoErr("write", h.path, code)
		}
		if n <= 0 {
			h.noteWrite(start + int64(written))
			return written, fserrors.New(fserrors.ErrCodeShortWrite, "write", h.path,
				fmt.Sprintf("%d of %d bytes written", written, len(p)))
		}
		h.sess.metrics.AddBytesWritten(n)
		written += n
	}
	h.noteWrite(start + int64(written))
	return written, nil
}

func (h *fileHandle) noteWrite(end int64) {
	if end > h.length {
		h.length = end
	}
}

// seekRaw moves the descriptor cursor and returns the resulting absolute
// position. io.SeekEnd is resolved against the length ledger because the
// native client only understands set/current origins.
func (h *fileHandle) seekRaw(offset int64, whence int) (int64, error) {
	nativeWhence := native.SeekSet
	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return 0, fserrors.New(fserrors.ErrCodeInvalidSeek, "seek", h.path,
				fmt.Sprintf("negative position %d", offset))
		}
	case io.SeekCurrent:
		nativeWhence = native.SeekCur
	case io.SeekEnd:
		offset += h.length
	default:
		return 0, fserrors.New(fserrors.ErrCodeInvalidSeek, "seek", h.path,
			fmt.Sprintf("unknown whence %d", whence))
	}
	pos, code := h.sess.lib.Lseek(h.sess.handle, h.fd, offset, nativeWhence)
	h.sess.observe("lseek", code)
	if code == native.EINVAL {
		return 0, fserrors.New(fserrors.ErrCodeInvalidSeek, "seek", h.path,
			fmt.Sprintf("offset %d rejected", offset))
	}
	if code != native.OK {
		return 0, errnoErr("seek", h.path, code)
	}
	return pos, nil
}

// truncate shrinks or grows the file through the path-based native call
// and adjusts the length ledger.
func (h *fileHandle) truncate(size int64) error {
	code := h.sess.lib.Truncate(h.sess.handle, h.path, size)
	h.sess.observe("truncate", code)
	if code != native.OK {
		return errnoErr("truncate", h.path, code)
	}
	h.length = size
	return nil
}

func (h *fileHandle) flush() error {
	code := h.sess.lib.Flush(h.sess.handle, h.fd)
	h.sess.observe("flush", code)
	if code != native.OK {
		return errnoErr("flush", h.path, code)
	}
	return nil
}

func (h *fileHandle) fsync() error {
	code := h.sess.lib.Fsync(h.sess.handle, h.fd)
	h.sess.observe("fsync", code)
	if code != native.OK {
		return errnoErr("fsync", h.path, code)
	}
	return nil
}

// close releases the native descriptor. Writable handles are flushed
// first; a flush failure is reported but never blocks the release. close
// is idempotent.
func (h *fileHandle) close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	var flushErr error
	if h.writable {
		flushErr = h.flush()
	}
	code := h.sess.lib.Close(h.sess.handle, h.fd)
	h.sess.observe("close", code)
	h.sess.fileClosed()
	if flushErr != nil {
		return flushErr
	}
	if code != native.OK {
		return errnoErr("close", h.path, code)
	}
	return nil
}
