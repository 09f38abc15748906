package driftfs

import (
	"bytes"
	"fmt"
	"io"
	"iter"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// File is the stream returned by Session.Open. It owns its file handle
// exclusively: closing the File releases the native descriptor, and every
// operation after Close fails with STREAM_CLOSED except Close itself,
// which is a no-op.
//
// The usual scoped pattern guarantees release on every exit path:
//
//	f, err := sess.Open("/data/log", "rb")
//	if err != nil { ... }
//	defer f.Close()
//
// Sequential operations on one File are observed in issue order. Concurrent
// use of the same File is undefined unless the caller serializes it; the
// native client expects the same.
type File struct {
	h       *fileHandle
	name    string
	mode    fileMode
	bufSize int

	// pos mirrors the native descriptor cursor. The position reported to
	// callers is pos minus the unconsumed look-ahead in rbuf.
	pos  int64
	rbuf []byte
	eof  bool

	decoder *encoding.Decoder
	encoder *encoding.Encoder

	closed bool
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.name }

// Mode returns the normalized mode string ("rb", "wt", ...).
func (f *File) Mode() string { return f.mode.String() }

func (f *File) checkOpen(op string) error {
	if f.closed {
		return fserrors.New(fserrors.ErrCodeStreamClosed, op, f.name, "file is closed")
	}
	return nil
}

func (f *File) checkReadable(op string) error {
	if err := f.checkOpen(op); err != nil {
		return err
	}
	if !f.mode.readable() {
		return fserrors.New(fserrors.ErrCodeUnsupportedMode, op, f.name,
			"file not open for reading")
	}
	return nil
}

func (f *File) checkWritable(op string) error {
	if err := f.checkOpen(op); err != nil {
		return err
	}
	if !f.mode.writable() {
		return fserrors.New(fserrors.ErrCodeUnsupportedMode, op, f.name,
			"file not open for writing")
	}
	return nil
}

// fill appends up to bufSize more raw bytes to the look-ahead buffer. A
// zero count marks end of stream.
func (f *File) fill() (int, error) {
	chunk := make([]byte, f.bufSize)
	n, err := f.h.readRaw(chunk)
	if err != nil {
		return 0, err
	}
	f.pos += int64(n)
	if n == 0 {
		f.eof = true
		return 0, nil
	}
	f.rbuf = append(f.rbuf, chunk[:n]...)
	return n, nil
}

// Read fills p until it is full or the end of the stream is reached,
// accumulating across short native reads. It returns fewer than len(p)
// bytes only at end of stream, and (0, io.EOF) once the stream is
// exhausted; repeated reads at EOF keep returning io.EOF.
//
// In text mode p receives UTF-8 bytes decoded from the configured
// encoding; an incomplete multi-byte sequence at a chunk boundary is held
// back and consumed by the next read.
func (f *File) Read(p []byte) (int, error) {
	if err := f.checkReadable("read"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.decoder != nil {
		return f.readText(p)
	}

	n := copy(p, f.rbuf)
	f.rbuf = f.rbuf[n:]
	for n < len(p) {
		m, err := f.h.readRaw(p[n:])
		if err != nil {
			return n, err
		}
		f.pos += int64(m)
		if m == 0 {
			f.eof = true
			break
		}
		n += m
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *File) readText(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(f.rbuf) == 0 && !f.eof {
			if _, err := f.fill(); err != nil {
				if n > 0 {
					return n, nil
				}
				return 0, err
			}
		}
		if len(f.rbuf) == 0 && f.eof {
			break
		}
		nDst, nSrc, terr := f.decoder.Transform(p[n:], f.rbuf, f.eof)
		f.rbuf = f.rbuf[nSrc:]
		n += nDst
		switch terr {
		case nil:
			if len(f.rbuf) == 0 && f.eof {
				if n == 0 {
					return 0, io.EOF
				}
				return n, nil
			}
		case transform.ErrShortSrc:
			// A partial sequence is stranded in rbuf; fetch more raw
			// bytes so the next Transform can finish it.
			if f.eof {
				return n, nil
			}
			if _, err := f.fill(); err != nil {
				if n > 0 {
					return n, nil
				}
				return 0, err
			}
		case transform.ErrShortDst:
			if n == 0 {
				return 0, io.ErrShortBuffer
			}
			return n, nil
		default:
			return n, fserrors.Wrap(fserrors.ErrCodeBadEncoding, "read", f.name, terr)
		}
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadAll reads from the current position to end of stream.
func (f *File) ReadAll() ([]byte, error) {
	if err := f.checkReadable("read"); err != nil {
		return nil, err
	}
	var out []byte
	buf := make([]byte, f.bufSize)
	for {
		n, err := f.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// ReadAt reads len(p) bytes at offset off without moving the stream
// position, implementing io.ReaderAt. It returns io.EOF when the stream
// ends before p is full.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if err := f.checkReadable("pread"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fserrors.New(fserrors.ErrCodeInvalidSeek, "pread", f.name,
			fmt.Sprintf("negative offset %d", off))
	}
	n := 0
	for n < len(p) {
		m, err := f.h.preadRaw(p[n:], off+int64(n))
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, io.EOF
		}
		n += m
	}
	return n, nil
}

// Write writes all of p at the current position. A partial write without a
// native error is a local invariant violation and fails with SHORT_WRITE;
// it is never retried silently, because replaying a partial append would
// reorder bytes. In append mode every write lands at the end of the file.
// In text mode p must be UTF-8 and is encoded to the configured encoding.
func (f *File) Write(p []byte) (int, error) {
	if err := f.checkWritable("write"); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	payload := p
	if f.encoder != nil {
		enc, err := f.encoder.Bytes(p)
		if err != nil {
			return 0, fserrors.Wrap(fserrors.ErrCodeBadEncoding, "write", f.name, err)
		}
		payload = enc
	}
	if f.mode.op == opAppend {
		pos, err := f.h.seekRaw(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		f.pos = pos
	}
	n, err := f.h.writeAll(payload, f.pos)
	f.pos += int64(n)
	if err != nil {
		if f.encoder != nil {
			return 0, err
		}
		return n, err
	}
	return len(p), nil
}

// WriteString writes s, encoding it in text mode.
func (f *File) WriteString(s string) (int, error) {
	return f.Write([]byte(s))
}

// Seek moves the stream position and returns the new absolute offset,
// implementing io.Seeker. Seeking discards any text-mode bytes held back
// at a decode boundary; they are no longer contiguous with the new
// position. A negative target position fails with INVALID_SEEK.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.checkOpen("seek"); err != nil {
		return 0, err
	}
	var pos int64
	var err error
	switch whence {
	case io.SeekStart:
		pos, err = f.h.seekRaw(offset, io.SeekStart)
	case io.SeekCurrent:
		// The native cursor is ahead of the caller by the look-ahead
		// length, so relative seeks resolve against the logical position.
		pos, err = f.h.seekRaw(f.Tell()+offset, io.SeekStart)
	case io.SeekEnd:
		pos, err = f.h.seekRaw(offset, io.SeekEnd)
	default:
		return 0, fserrors.New(fserrors.ErrCodeInvalidSeek, "seek", f.name,
			fmt.Sprintf("unknown whence %d", whence))
	}
	if err != nil {
		return 0, err
	}
	f.pos = pos
	f.rbuf = nil
	f.eof = false
	if f.decoder != nil {
		f.decoder.Reset()
	}
	return pos, nil
}

// Tell returns the position the next read or write acts on. It never
// issues a native call.
func (f *File) Tell() int64 {
	return f.pos - int64(len(f.rbuf))
}

// ReadLine returns the next line including its trailing newline. The final
// fragment of a stream without one is returned once; after that ReadLine
// returns io.EOF. Lines are split on a single '\n' byte, which all
// supported encodings represent as the byte 0x0A.
func (f *File) ReadLine() ([]byte, error) {
	if err := f.checkReadable("readline"); err != nil {
		return nil, err
	}
	for {
		if i := bytes.IndexByte(f.rbuf, '\n'); i >= 0 {
			return f.consumeLine(i + 1)
		}
		if f.eof {
			if len(f.rbuf) > 0 {
				return f.consumeLine(len(f.rbuf))
			}
			return nil, io.EOF
		}
		if _, err := f.fill(); err != nil {
			return nil, err
		}
	}
}

func (f *File) consumeLine(n int) ([]byte, error) {
	raw := f.rbuf[:n]
	f.rbuf = f.rbuf[n:]
	if f.decoder == nil {
		out := make([]byte, n)
		copy(out, raw)
		return out, nil
	}
	line, err := f.decoder.Bytes(raw)
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrCodeBadEncoding, "readline", f.name, err)
	}
	return line, nil
}

// Lines iterates over the remaining lines of the file. Iteration is
// finite and single-use; seek back to the start to restart it. The error
// is non-nil at most once, for the read that failed.
func (f *File) Lines() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, err := f.ReadLine()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(string(line), nil) {
				return
			}
		}
	}
}

// Truncate resizes the file to size bytes. The stream position is left
// unchanged.
func (f *File) Truncate(size int64) error {
	if err := f.checkWritable("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return fserrors.New(fserrors.ErrCodeInvalidSeek, "truncate", f.name,
			fmt.Sprintf("negative size %d", size))
	}
	return f.h.truncate(size)
}

// Flush pushes buffered writes in the native client toward storage.
func (f *File) Flush() error {
	if err := f.checkOpen("flush"); err != nil {
		return err
	}
	return f.h.flush()
}

// Sync forces written data to durable storage.
func (f *File) Sync() error {
	if err := f.checkOpen("fsync"); err != nil {
		return err
	}
	return f.h.fsync()
}

// Stat returns the file's current metadata.
func (f *File) Stat() (*FileStat, error) {
	if err := f.checkOpen("stat"); err != nil {
		return nil, err
	}
	return f.h.sess.Stat(f.name)
}

// Size returns the stream length as tracked by the handle ledger.
func (f *File) Size() int64 { return f.h.length }

// Close flushes pending writes and releases the native descriptor. It is
// idempotent; only the first call does work.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.rbuf = nil
	return f.h.close()
}
