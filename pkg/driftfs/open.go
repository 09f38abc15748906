package driftfs

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/driftfs/driftfs-go/internal/native"
	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// Default permission bits for files and directories created by the SDK,
// before the server-side umask.
const (
	DefaultFileMode = 0o777
	DefaultDirMode  = 0o777
)

const defaultBufferSize = 32 << 10

// OpenOption adjusts how a File is opened.
type OpenOption func(*openOptions)

type openOptions struct {
	encoding string
	bufSize  int
}

// WithEncoding selects the text-mode character encoding by IANA name.
// It has no effect on binary files. The default is UTF-8.
func WithEncoding(name string) OpenOption {
	return func(o *openOptions) { o.encoding = name }
}

// WithBufferSize sets the look-ahead buffer size used by reads and line
// scanning. The default is 32 KiB.
func WithBufferSize(n int) OpenOption {
	return func(o *openOptions) { o.bufSize = n }
}

// Open opens the file at path with a POSIX-style mode string: "r"/"rb" to
// read, "w"/"wb" to create or truncate, "a"/"ab" to append, "x"/"xb" for
// exclusive creation, with a trailing "t" for text mode. Update ("+") modes
// are not supported by the native client and are rejected before any
// native call.
func (s *Session) Open(path string, mode string, opts ...OpenOption) (*File, error) {
	m, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	var options openOptions
	for _, opt := range opts {
		opt(&options)
	}
	var codec encoding.Encoding
	if m.text {
		codec, err = lookupEncoding(options.encoding)
		if err != nil {
			return nil, err
		}
	}
	if err := s.active("open"); err != nil {
		return nil, err
	}
	p := cleanPath(path)
	if m.writable() && s.cfg.ReadOnly {
		return nil, fserrors.New(fserrors.ErrCodePermissionDenied, "open", p,
			"session is mounted read-only")
	}

	// The native open call takes only access flags; existence checks,
	// truncation and creation happen through the metadata surface first.
	var length int64
	st, err := s.statRaw(p, true)
	switch {
	case err == nil:
		if st.Mode.IsDir() {
			return nil, fserrors.New(fserrors.ErrCodeIsDirectory, "open", p, "is a directory")
		}
		switch m.op {
		case opCreate:
			return nil, fserrors.New(fserrors.ErrCodeAlreadyExists, "open", p, "file exists")
		case opWrite:
			if err := s.Truncate(p, 0); err != nil {
				return nil, err
			}
		default:
			length = st.Size
		}
	case fserrors.IsNotFound(err):
		if m.op == opRead {
			return nil, err
		}
		if err := s.Create(p, DefaultFileMode); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	flags := native.AccessRead
	if m.writable() {
		flags = native.AccessWrite
	}
	fd, code := s.lib.Open(s.handle, p, flags)
	s.observe("open", code)
	if code != native.OK {
		return nil, errnoErr("open", p, code)
	}

	h := &fileHandle{sess: s, fd: fd, path: p, writable: m.writable(), length: length}
	s.fileOpened()

	bufSize := options.bufSize
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	f := &File{h: h, name: p, mode: m, bufSize: bufSize}
	if m.text {
		f.decoder = codec.NewDecoder()
		f.encoder = codec.NewEncoder()
	}
	if m.op == opAppend {
		pos, err := h.seekRaw(0, io.SeekEnd)
		if err != nil {
			_ = h.close()
			return nil, err
		}
		f.pos = pos
	}
	return f, nil
}

// lookupEncoding resolves an IANA charset name. An empty name means UTF-8.
// Only ASCII-compatible encodings are accepted: line reading splits the
// raw stream on the byte 0x0A, which is wrong for charsets like UTF-16
// where that byte occurs inside multi-byte code units.
func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fserrors.New(fserrors.ErrCodeBadEncoding, "open", "",
			fmt.Sprintf("unknown encoding %q", name))
	}
	if nl, err := enc.NewEncoder().Bytes([]byte("\n")); err != nil || len(nl) != 1 || nl[0] != '\n' {
		return nil, fserrors.New(fserrors.ErrCodeBadEncoding, "open", "",
			fmt.Sprintf("encoding %q is not ASCII-compatible", name))
	}
	return enc, nil
}
