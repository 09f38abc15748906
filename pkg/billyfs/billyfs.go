// Package billyfs exposes a DriftFS session through the go-billy filesystem
// interfaces, so tooling written against billy (go-git and friends) can
// operate on a DriftFS volume directly.
//
// The adapter implements billy.Basic, billy.Dir and billy.Symlink. The
// native client has no combined read/write descriptors, so OpenFile rejects
// os.O_RDWR; Lock and Unlock are no-ops, matching the in-memory billy
// backends.
package billyfs

import (
	"io/fs"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/driftfs/driftfs-go/pkg/driftfs"
	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// FS adapts a driftfs.Session to the go-billy filesystem interfaces.
type FS struct {
	sess *driftfs.Session
}

var (
	_ billy.Basic   = (*FS)(nil)
	_ billy.Dir     = (*FS)(nil)
	_ billy.Symlink = (*FS)(nil)
)

// New wraps an open session. The caller keeps ownership of the session and
// closes it after the adapter is no longer used.
func New(sess *driftfs.Session) *FS {
	return &FS{sess: sess}
}

// Create implements billy.Basic, truncating the file if it exists.
func (b *FS) Create(filename string) (billy.File, error) {
	f, err := b.sess.Open(filename, "wb")
	if err != nil {
		return nil, err
	}
	return &file{f: f}, nil
}

// Open implements billy.Basic, opening for reading.
func (b *FS) Open(filename string) (billy.File, error) {
	f, err := b.sess.Open(filename, "rb")
	if err != nil {
		return nil, err
	}
	return &file{f: f}, nil
}

// OpenFile implements billy.Basic. Only flag combinations the native
// client can express are supported: read-only, write with create and
// truncate, exclusive create, and append.
func (b *FS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	mode, err := modeForFlag(filename, flag)
	if err != nil {
		return nil, err
	}
	f, err := b.sess.Open(filename, mode)
	if err != nil {
		return nil, err
	}
	return &file{f: f}, nil
}

func modeForFlag(filename string, flag int) (string, error) {
	if flag&os.O_RDWR != 0 {
		return "", fserrors.New(fserrors.ErrCodeUnsupportedMode, "open", filename,
			"read/write descriptors are not supported")
	}
	switch {
	case flag&os.O_APPEND != 0:
		return "ab", nil
	case flag&os.O_EXCL != 0:
		return "xb", nil
	case flag&os.O_WRONLY != 0:
		// Plain O_WRONLY positions at offset zero without truncating,
		// which the mode table cannot express.
		if flag&os.O_TRUNC == 0 {
			return "", fserrors.New(fserrors.ErrCodeUnsupportedMode, "open", filename,
				"write without O_TRUNC is not supported")
		}
		return "wb", nil
	default:
		return "rb", nil
	}
}

// Stat implements billy.Basic.
func (b *FS) Stat(filename string) (os.FileInfo, error) {
	st, err := b.sess.Stat(filename)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Rename implements billy.Basic.
func (b *FS) Rename(oldpath, newpath string) error {
	return b.sess.Rename(oldpath, newpath)
}

// Remove implements billy.Basic.
func (b *FS) Remove(filename string) error {
	return b.sess.Remove(filename)
}

// Join implements billy.Basic. Volume paths always use forward slashes.
func (b *FS) Join(elem ...string) string {
	return path.Join(elem...)
}

// ReadDir implements billy.Dir.
func (b *FS) ReadDir(p string) ([]os.FileInfo, error) {
	ents, err := b.sess.ReadDir(p)
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, len(ents))
	for i, ent := range ents {
		info, err := ent.Info()
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}

// MkdirAll implements billy.Dir.
func (b *FS) MkdirAll(filename string, perm os.FileMode) error {
	return b.sess.MakeDirs(filename, fs.FileMode(perm), true)
}

// Lstat implements billy.Symlink.
func (b *FS) Lstat(filename string) (os.FileInfo, error) {
	st, err := b.sess.Lstat(filename)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Symlink implements billy.Symlink.
func (b *FS) Symlink(target, link string) error {
	return b.sess.Symlink(target, link)
}

// Readlink implements billy.Symlink.
func (b *FS) Readlink(link string) (string, error) {
	return b.sess.Readlink(link)
}

// file adapts a driftfs.File to billy.File.
type file struct {
	f *driftfs.File
}

var _ billy.File = (*file)(nil)

func (f *file) Name() string { return f.f.Name() }

func (f *file) Read(p []byte) (int, error) { return f.f.Read(p) }

func (f *file) ReadAt(p []byte, off int64) (int, error) { return f.f.ReadAt(p, off) }

func (f *file) Write(p []byte) (int, error) { return f.f.Write(p) }

func (f *file) Seek(offset int64, whence int) (int64, error) { return f.f.Seek(offset, whence) }

func (f *file) Truncate(size int64) error { return f.f.Truncate(size) }

func (f *file) Close() error { return f.f.Close() }

// Lock is a no-op; the native client has no byte-range or whole-file
// locking surface.
func (f *file) Lock() error { return nil }

// Unlock is a no-op.
func (f *file) Unlock() error { return nil }
