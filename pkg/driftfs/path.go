package driftfs

import (
	"fmt"
	"io/fs"
	"iter"
	"path"
	"time"

	"github.com/driftfs/driftfs-go/internal/native"
	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// Access check flags for Session.Access.
const (
	CheckRead  = native.AccessRead
	CheckWrite = native.AccessWrite
)

// Xattr set flags for Session.SetXattr, matching XATTR_CREATE and
// XATTR_REPLACE.
const (
	XattrCreate  = native.XattrCreate
	XattrReplace = native.XattrReplace
)

const (
	statBufLen  = 4 << 10
	dirPageLen  = 64 << 10
	xattrBufLen = 1 << 10
	maxValueLen = 64 << 10
)

// cleanPath normalizes a volume path: paths are rooted at "/", "." and ".."
// segments are resolved lexically, and trailing slashes are dropped.
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

func (s *Session) statRaw(p string, follow bool) (native.Stat, error) {
	op := "lstat"
	buf := make([]byte, statBufLen)
	var n int
	var code native.Errno
	if follow {
		op = "stat"
		n, code = s.lib.Stat(s.handle, p, buf)
	} else {
		n, code = s.lib.Lstat(s.handle, p, buf)
	}
	s.observe(op, code)
	if code != native.OK {
		return native.Stat{}, errnoErr(op, p, code)
	}
	st, err := native.DecodeStat(buf, n)
	if err != nil {
		return native.Stat{}, fserrors.Wrap(fserrors.ErrCodeNative, op, p, err)
	}
	return st, nil
}

// Stat returns metadata for the file at path, following symlinks.
func (s *Session) Stat(p string) (*FileStat, error) {
	if err := s.active("stat"); err != nil {
		return nil, err
	}
	p = cleanPath(p)
	st, err := s.statRaw(p, true)
	if err != nil {
		return nil, err
	}
	return newFileStat(p, st), nil
}

// Lstat returns metadata for the file at path without following a final
// symlink.
func (s *Session) Lstat(p string) (*FileStat, error) {
	if err := s.active("lstat"); err != nil {
		return nil, err
	}
	p = cleanPath(p)
	st, err := s.statRaw(p, false)
	if err != nil {
		return nil, err
	}
	return newFileStat(p, st), nil
}

// Exists reports whether path resolves to an existing file or directory.
// A broken symlink does not exist by this measure; see LExists.
func (s *Session) Exists(p string) (bool, error) {
	_, err := s.Stat(p)
	if err == nil {
		return true, nil
	}
	if fserrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// LExists reports whether path names an entry, without following a final
// symlink.
func (s *Session) LExists(p string) (bool, error) {
	_, err := s.Lstat(p)
	if err == nil {
		return true, nil
	}
	if fserrors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// IsDir reports whether path is an existing directory.
func (s *Session) IsDir(p string) (bool, error) {
	st, err := s.Stat(p)
	if err != nil {
		if fserrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return st.IsDir(), nil
}

// IsFile reports whether path is an existing regular file.
func (s *Session) IsFile(p string) (bool, error) {
	st, err := s.Stat(p)
	if err != nil {
		if fserrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return st.Mode().IsRegular(), nil
}

// IsLink reports whether path is a symbolic link.
func (s *Session) IsLink(p string) (bool, error) {
	st, err := s.Lstat(p)
	if err != nil {
		if fserrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return st.IsSymlink(), nil
}

// Create makes an empty regular file at path with the given permission
// bits, before the server-side umask. It fails if the path already exists.
func (s *Session) Create(p string, perm fs.FileMode) error {
	if err := s.active("create"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Create(s.handle, p, uint16(perm.Perm()))
	s.observe("create", code)
	if code != native.OK {
		return errnoErr("create", p, code)
	}
	return nil
}

// Truncate resizes the file at path to size bytes.
func (s *Session) Truncate(p string, size int64) error {
	if err := s.active("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return fserrors.New(fserrors.ErrCodeInvalidSeek, "truncate", p,
			fmt.Sprintf("negative size %d", size))
	}
	p = cleanPath(p)
	code := s.lib.Truncate(s.handle, p, size)
	s.observe("truncate", code)
	if code != native.OK {
		return errnoErr("truncate", p, code)
	}
	return nil
}

// Mkdir creates a single directory. The parent must already exist.
func (s *Session) Mkdir(p string, perm fs.FileMode) error {
	if err := s.active("mkdir"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Mkdir(s.handle, p, uint16(perm.Perm()))
	s.observe("mkdir", code)
	if code != native.OK {
		return errnoErr("mkdir", p, code)
	}
	return nil
}

// MakeDirs creates the directory at path along with any missing parents.
// When existOK is true an existing directory at path is not an error; an
// existing non-directory still is.
func (s *Session) MakeDirs(p string, perm fs.FileMode, existOK bool) error {
	if err := s.active("mkdir"); err != nil {
		return err
	}
	p = cleanPath(p)
	if p == "/" {
		if existOK {
			return nil
		}
		return fserrors.New(fserrors.ErrCodeAlreadyExists, "mkdir", p, "file exists")
	}
	if parent := path.Dir(p); parent != "/" {
		if err := s.MakeDirs(parent, perm, true); err != nil {
			return err
		}
	}
	err := s.Mkdir(p, perm)
	if err == nil {
		return nil
	}
	if fserrors.CodeOf(err) != fserrors.ErrCodeAlreadyExists {
		return err
	}
	if !existOK {
		return err
	}
	isDir, derr := s.IsDir(p)
	if derr != nil {
		return derr
	}
	if !isDir {
		return fserrors.New(fserrors.ErrCodeNotDirectory, "mkdir", p, "not a directory")
	}
	return nil
}

// Remove deletes a file, a symlink, or an empty directory.
func (s *Session) Remove(p string) error {
	if err := s.active("delete"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Delete(s.handle, p)
	s.observe("delete", code)
	if code != native.OK {
		return errnoErr("delete", p, code)
	}
	return nil
}

// Rmdir removes an empty directory. Removing a non-directory fails with
// NOT_DIRECTORY.
func (s *Session) Rmdir(p string) error {
	if err := s.active("rmdir"); err != nil {
		return err
	}
	p = cleanPath(p)
	st, err := s.statRaw(p, false)
	if err != nil {
		return err
	}
	if !st.Mode.IsDir() {
		return fserrors.New(fserrors.ErrCodeNotDirectory, "rmdir", p, "not a directory")
	}
	code := s.lib.Delete(s.handle, p)
	s.observe("rmdir", code)
	if code != native.OK {
		return errnoErr("rmdir", p, code)
	}
	return nil
}

// RemoveDirs removes the directory at path, then its parent directories as
// long as they are empty. Only the removal of path itself reports an
// error; the upward sweep stops silently at the first parent that cannot
// be removed.
func (s *Session) RemoveDirs(p string) error {
	p = cleanPath(p)
	if err := s.Rmdir(p); err != nil {
		return err
	}
	for parent := path.Dir(p); parent != "/"; parent = path.Dir(parent) {
		if s.Rmdir(parent) != nil {
			break
		}
	}
	return nil
}

// RemoveAll removes the tree rooted at path. A missing path is not an
// error.
func (s *Session) RemoveAll(p string) error {
	if err := s.active("rmr"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Rmr(s.handle, p)
	s.observe("rmr", code)
	if code != native.OK && code != native.ENOENT {
		return errnoErr("rmr", p, code)
	}
	return nil
}

// Rename atomically moves src to dst, replacing dst if it exists.
func (s *Session) Rename(src, dst string) error {
	if err := s.active("rename"); err != nil {
		return err
	}
	src, dst = cleanPath(src), cleanPath(dst)
	code := s.lib.Rename(s.handle, src, dst)
	s.observe("rename", code)
	if code != native.OK {
		return errnoErr2("rename", src, dst, code)
	}
	return nil
}

// Symlink creates link pointing at target. The target is stored verbatim
// and is not required to exist.
func (s *Session) Symlink(target, link string) error {
	if err := s.active("symlink"); err != nil {
		return err
	}
	link = cleanPath(link)
	code := s.lib.Symlink(s.handle, target, link)
	s.observe("symlink", code)
	if code != native.OK {
		return errnoErr2("symlink", link, target, code)
	}
	return nil
}

// Readlink returns the target a symlink points at.
func (s *Session) Readlink(p string) (string, error) {
	if err := s.active("readlink"); err != nil {
		return "", err
	}
	p = cleanPath(p)
	for size := xattrBufLen; ; size *= 2 {
		buf := make([]byte, size)
		n, code := s.lib.Readlink(s.handle, p, buf)
		s.observe("readlink", code)
		if code != native.OK {
			return "", errnoErr("readlink", p, code)
		}
		if n < len(buf) || size >= maxValueLen {
			return native.DecodeCString(buf[:n]), nil
		}
	}
}

// Chmod changes the permission bits of the file at path.
func (s *Session) Chmod(p string, perm fs.FileMode) error {
	if err := s.active("chmod"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Chmod(s.handle, p, uint16(perm.Perm()))
	s.observe("chmod", code)
	if code != native.OK {
		return errnoErr("chmod", p, code)
	}
	return nil
}

// Chown changes ownership of the file at path. The native client names
// principals by user and group name, not numeric id. An empty string
// leaves that side unchanged.
func (s *Session) Chown(p, owner, group string) error {
	if err := s.active("chown"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Chown(s.handle, p, owner, group)
	s.observe("chown", code)
	if code != native.OK {
		return errnoErr("chown", p, code)
	}
	return nil
}

// Utime sets the access and modification times of the file at path.
// Sub-millisecond precision is dropped by the native client.
func (s *Session) Utime(p string, atime, mtime time.Time) error {
	if err := s.active("utime"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Utime(s.handle, p, atime.UnixMilli(), mtime.UnixMilli())
	s.observe("utime", code)
	if code != native.OK {
		return errnoErr("utime", p, code)
	}
	return nil
}

// Access checks whether the mounted identity may access path with the
// given flags (CheckRead, CheckWrite, or both). A zero flag checks bare
// existence.
func (s *Session) Access(p string, flags int) error {
	if err := s.active("access"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.Access(s.handle, p, flags)
	s.observe("access", code)
	if code != native.OK {
		return errnoErr("access", p, code)
	}
	return nil
}

// Concat appends the content of srcs to dst, in order. The destination
// must already exist; the sources are left in place.
func (s *Session) Concat(dst string, srcs ...string) error {
	if err := s.active("concat"); err != nil {
		return err
	}
	dst = cleanPath(dst)
	cleaned := make([]string, len(srcs))
	for i, src := range srcs {
		cleaned[i] = cleanPath(src)
	}
	code := s.lib.Concat(s.handle, dst, cleaned)
	s.observe("concat", code)
	if code != native.OK {
		return errnoErr("concat", dst, code)
	}
	return nil
}

// Scandir streams the entries of the directory at path in the order the
// native client returns them, fetching listing pages lazily. Stopping the
// iteration early abandons the remaining pages. The error is non-nil at
// most once, for the page fetch that failed.
func (s *Session) Scandir(p string) iter.Seq2[DirEntry, error] {
	p = cleanPath(p)
	return func(yield func(DirEntry, error) bool) {
		if err := s.active("readdir"); err != nil {
			yield(DirEntry{}, err)
			return
		}
		cont := 0
		buf := make([]byte, dirPageLen)
		for {
			n, code := s.lib.Readdir(s.handle, p, cont, buf)
			s.observe("readdir", code)
			if code != native.OK {
				yield(DirEntry{}, errnoErr("readdir", p, code))
				return
			}
			if n == 0 {
				return
			}
			ents, remaining, next, err := native.DecodeDirPage(buf, n)
			if err != nil {
				yield(DirEntry{}, fserrors.Wrap(fserrors.ErrCodeNative, "readdir", p, err))
				return
			}
			for _, ent := range ents {
				e := DirEntry{dir: p, stat: newFileStat(ent.Name, ent.Stat)}
				if !yield(e, nil) {
					return
				}
			}
			if remaining == 0 {
				return
			}
			cont = next
		}
	}
}

// ReadDir returns all entries of the directory at path.
func (s *Session) ReadDir(p string) ([]DirEntry, error) {
	var out []DirEntry
	for ent, err := range s.Scandir(p) {
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

// ListDir returns the names of the entries of the directory at path.
func (s *Session) ListDir(p string) ([]string, error) {
	ents, err := s.ReadDir(p)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ents))
	for i, ent := range ents {
		names[i] = ent.Name()
	}
	return names, nil
}

// Walk traverses the tree rooted at root depth-first, calling fn for every
// entry the way fs.WalkDir does: fs.SkipDir skips the directory just
// visited (or, from a non-directory, the rest of its containing
// directory), fs.SkipAll ends the walk, and a lookup failure is reported
// to fn with a nil entry before the walk decides whether to continue.
func (s *Session) Walk(root string, fn fs.WalkDirFunc) error {
	root = cleanPath(root)
	st, err := s.Lstat(root)
	if err != nil {
		err = fn(root, nil, err)
	} else {
		err = s.walk(root, DirEntry{dir: path.Dir(root), stat: st}, fn)
	}
	if err == fs.SkipDir || err == fs.SkipAll {
		return nil
	}
	return err
}

func (s *Session) walk(p string, ent DirEntry, fn fs.WalkDirFunc) error {
	if err := fn(p, ent, nil); err != nil {
		if err == fs.SkipDir && ent.IsDir() {
			return nil
		}
		return err
	}
	if !ent.IsDir() {
		return nil
	}
	ents, err := s.ReadDir(p)
	if err != nil {
		err = fn(p, ent, err)
		if err == fs.SkipDir {
			return nil
		}
		return err
	}
	for _, child := range ents {
		if err := s.walk(child.Path(), child, fn); err != nil {
			// fs.SkipDir from a non-directory child skips the rest of
			// this directory, not the whole walk.
			if err == fs.SkipDir {
				break
			}
			return err
		}
	}
	return nil
}

// StatVFS reports the capacity and free space of the volume, in blocks.
func (s *Session) StatVFS() (*VFSInfo, error) {
	if err := s.active("statvfs"); err != nil {
		return nil, err
	}
	buf := make([]byte, 16)
	n, code := s.lib.StatVFS(s.handle, buf)
	s.observe("statvfs", code)
	if code != native.OK {
		return nil, errnoErr("statvfs", "/", code)
	}
	v, err := native.DecodeVFSStat(buf[:n])
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrCodeNative, "statvfs", "/", err)
	}
	return &VFSInfo{Blocks: v.Blocks, Avail: v.Avail}, nil
}

// Summary aggregates the size and entry counts of the tree rooted at path.
func (s *Session) Summary(p string) (*DirSummary, error) {
	if err := s.active("summary"); err != nil {
		return nil, err
	}
	p = cleanPath(p)
	buf := make([]byte, 24)
	n, code := s.lib.Summary(s.handle, p, buf)
	s.observe("summary", code)
	if code != native.OK {
		return nil, errnoErr("summary", p, code)
	}
	sum, err := native.DecodeSummary(buf[:n])
	if err != nil {
		return nil, fserrors.Wrap(fserrors.ErrCodeNative, "summary", p, err)
	}
	return &DirSummary{Size: sum.Size, Files: sum.Files, Dirs: sum.Dirs}, nil
}

// GetXattr returns the value of the named extended attribute.
func (s *Session) GetXattr(p, name string) ([]byte, error) {
	if err := s.active("getxattr"); err != nil {
		return nil, err
	}
	p = cleanPath(p)
	for size := xattrBufLen; ; size *= 2 {
		buf := make([]byte, size)
		n, code := s.lib.GetXattr(s.handle, p, name, buf)
		s.observe("getxattr", code)
		if code != native.OK {
			return nil, errnoErr("getxattr", p, code)
		}
		if n < len(buf) || size >= maxValueLen {
			out := make([]byte, n)
			copy(out, buf[:n])
			return out, nil
		}
	}
}

// SetXattr sets the named extended attribute. flags is zero to set
// unconditionally, XattrCreate to fail if the attribute exists, or
// XattrReplace to fail if it does not.
func (s *Session) SetXattr(p, name string, value []byte, flags int) error {
	if err := s.active("setxattr"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.SetXattr(s.handle, p, name, value, flags)
	s.observe("setxattr", code)
	if code != native.OK {
		return errnoErr("setxattr", p, code)
	}
	return nil
}

// RemoveXattr removes the named extended attribute.
func (s *Session) RemoveXattr(p, name string) error {
	if err := s.active("removexattr"); err != nil {
		return err
	}
	p = cleanPath(p)
	code := s.lib.RemoveXattr(s.handle, p, name)
	s.observe("removexattr", code)
	if code != native.OK {
		return errnoErr("removexattr", p, code)
	}
	return nil
}

// ListXattr returns the names of the extended attributes set on path.
func (s *Session) ListXattr(p string) ([]string, error) {
	if err := s.active("listxattr"); err != nil {
		return nil, err
	}
	p = cleanPath(p)
	for size := xattrBufLen; ; size *= 2 {
		buf := make([]byte, size)
		n, code := s.lib.ListXattr(s.handle, p, buf)
		s.observe("listxattr", code)
		if code != native.OK {
			return nil, errnoErr("listxattr", p, code)
		}
		if n < len(buf) || size >= maxValueLen {
			return native.DecodeXattrList(buf, n), nil
		}
	}
}
