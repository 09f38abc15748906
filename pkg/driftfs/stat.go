package driftfs

import (
	"io/fs"
	"path"
	"time"

	"github.com/driftfs/driftfs-go/internal/native"
)

// FileStat describes a file or directory. It implements fs.FileInfo, plus
// the ownership fields the native client reports by name rather than id.
type FileStat struct {
	name  string
	mode  fs.FileMode
	size  int64
	mtime time.Time
	atime time.Time
	owner string
	group string
}

func newFileStat(p string, st native.Stat) *FileStat {
	return &FileStat{
		name:  path.Base(p),
		mode:  st.Mode,
		size:  st.Size,
		mtime: time.UnixMilli(st.MtimeMS),
		atime: time.UnixMilli(st.AtimeMS),
		owner: st.Owner,
		group: st.Group,
	}
}

// Name implements fs.FileInfo.
func (s *FileStat) Name() string { return s.name }

// Size implements fs.FileInfo.
func (s *FileStat) Size() int64 { return s.size }

// Mode implements fs.FileInfo.
func (s *FileStat) Mode() fs.FileMode { return s.mode }

// ModTime implements fs.FileInfo.
func (s *FileStat) ModTime() time.Time { return s.mtime }

// IsDir implements fs.FileInfo.
func (s *FileStat) IsDir() bool { return s.mode.IsDir() }

// Sys implements fs.FileInfo.
func (s *FileStat) Sys() any { return nil }

// AccessTime returns the last access time.
func (s *FileStat) AccessTime() time.Time { return s.atime }

// Owner returns the owning user name.
func (s *FileStat) Owner() string { return s.owner }

// Group returns the owning group name.
func (s *FileStat) Group() string { return s.group }

// IsSymlink reports whether the entry is a symbolic link.
func (s *FileStat) IsSymlink() bool { return s.mode&fs.ModeSymlink != 0 }

// DirEntry is one entry of a directory listing. It implements fs.DirEntry;
// the stat information arrives with the listing page, so Info never issues
// another native call.
type DirEntry struct {
	dir  string
	stat *FileStat
}

// Name implements fs.DirEntry. The name has no path separators.
func (e DirEntry) Name() string { return e.stat.name }

// IsDir implements fs.DirEntry.
func (e DirEntry) IsDir() bool { return e.stat.IsDir() }

// Type implements fs.DirEntry.
func (e DirEntry) Type() fs.FileMode { return e.stat.mode.Type() }

// Info implements fs.DirEntry.
func (e DirEntry) Info() (fs.FileInfo, error) { return e.stat, nil }

// Path returns the full path of the entry within the volume.
func (e DirEntry) Path() string { return path.Join(e.dir, e.stat.name) }

// VFSInfo reports filesystem capacity in blocks, as the native client
// measures it.
type VFSInfo struct {
	Blocks int64
	Avail  int64
}

// DirSummary aggregates size and entry counts below a directory.
type DirSummary struct {
	Size  int64
	Files int64
	Dirs  int64
}
