// Package nativetest provides an in-memory implementation of the native call
// boundary for tests. It produces the same wire formats the production
// client emits and exposes knobs for short reads, short writes and small
// directory pages so the SDK's retry and pagination paths get exercised.
package nativetest

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/driftfs/driftfs-go/internal/native"
)

const defaultOwner = "driftfs"

type node struct {
	mode     fs.FileMode
	data     []byte
	children map[string]*node
	target   string
	mtimeMS  int64
	atimeMS  int64
	owner    string
	group    string
	xattrs   map[string][]byte
}

func (n *node) isDir() bool  { return n.mode.IsDir() }
func (n *node) isLink() bool { return n.mode&fs.ModeSymlink != 0 }

type openFile struct {
	path string
	node *node
	pos  int64
}

// Fake is an in-memory native.Library.
type Fake struct {
	mu sync.Mutex

	root    *node
	mounts  map[native.Handle]bool
	files   map[native.FD]*openFile
	pages   map[int][]native.DirEnt
	nextFD  native.FD
	nextTok int
	handle  native.Handle

	// MountErr, when non-zero, makes Mount fail with that code.
	MountErr native.Errno
	// MaxRead caps how many bytes a single Read or Pread returns,
	// forcing the SDK to accumulate across short reads.
	MaxRead int
	// MaxWrite caps how many bytes a single Write accepts.
	MaxWrite int
	// AcceptLimit, when positive, is the total number of bytes writes will
	// accept before returning zero, simulating a stalled native writer.
	AcceptLimit int
	// PageEntries caps how many entries one Readdir page carries.
	PageEntries int

	accepted int

	// Calls counts invocations by operation name.
	Calls map[string]int
}

var _ native.Library = (*Fake)(nil)

// New returns an empty fake filesystem.
func New() *Fake {
	return &Fake{
		root: &node{
			mode:     fs.ModeDir | 0o777,
			children: map[string]*node{},
			owner:    defaultOwner,
			group:    defaultOwner,
		},
		mounts: map[native.Handle]bool{},
		files:  map[native.FD]*openFile{},
		pages:  map[int][]native.DirEnt{},
		Calls:  map[string]int{},
	}
}

func nowMS() int64 { return time.Now().UnixMilli() }

func (f *Fake) count(op string) { f.Calls[op]++ }

// resolve walks p from the root, following symlinks in intermediate
// components and, when follow is set, in the final component too.
func (f *Fake) resolve(p string, follow bool) (*node, native.Errno) {
	return f.walk(p, follow, 0)
}

func (f *Fake) walk(p string, follow bool, depth int) (*node, native.Errno) {
	if depth > 8 {
		return nil, native.EINVAL
	}
	cur := f.root
	parts := splitPath(p)
	for i, part := range parts {
		if !cur.isDir() {
			return nil, native.ENOTDIR
		}
		next, ok := cur.children[part]
		if !ok {
			return nil, native.ENOENT
		}
		last := i == len(parts)-1
		if next.isLink() && (!last || follow) {
			target := next.target
			if !strings.HasPrefix(target, "/") {
				target = path.Join("/", strings.Join(parts[:i], "/"), target)
			}
			resolved, code := f.walk(target, true, depth+1)
			if code != native.OK {
				return nil, code
			}
			next = resolved
		}
		cur = next
	}
	return cur, native.OK
}

// parentOf resolves the directory containing p and returns it with the leaf
// name.
func (f *Fake) parentOf(p string) (*node, string, native.Errno) {
	dir, leaf := path.Split(path.Clean("/" + p))
	parent, code := f.resolve(dir, true)
	if code != native.OK {
		return nil, "", code
	}
	if !parent.isDir() {
		return nil, "", native.ENOTDIR
	}
	if leaf == "" {
		return nil, "", native.EINVAL
	}
	return parent, leaf, native.OK
}

func splitPath(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

func statOf(n *node) native.Stat {
	return native.Stat{
		Mode:    n.mode,
		Size:    int64(len(n.data)),
		MtimeMS: n.mtimeMS,
		AtimeMS: n.atimeMS,
		Owner:   n.owner,
		Group:   n.group,
	}
}

// Mount implements native.Library.
func (f *Fake) Mount(name string, conf []byte) (native.Handle, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("mount")
	if f.MountErr != native.OK {
		return 0, f.MountErr
	}
	if name == "" || len(conf) == 0 {
		return 0, native.EINVAL
	}
	f.handle++
	f.mounts[f.handle] = true
	return f.handle, native.OK
}

// Umount implements native.Library.
func (f *Fake) Umount(h native.Handle) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("umount")
	if !f.mounts[h] {
		return native.EINVAL
	}
	delete(f.mounts, h)
	return native.OK
}

func (f *Fake) checkHandle(h native.Handle) native.Errno {
	if !f.mounts[h] {
		return native.EINVAL
	}
	return native.OK
}

// Open implements native.Library.
func (f *Fake) Open(h native.Handle, p string, flags int) (native.FD, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("open")
	if code := f.checkHandle(h); code != native.OK {
		return 0, code
	}
	n, code := f.resolve(p, true)
	if code != native.OK {
		return 0, code
	}
	if n.isDir() {
		return 0, native.EISDIR
	}
	if flags&(native.AccessRead|native.AccessWrite) == 0 {
		return 0, native.EINVAL
	}
	f.nextFD++
	f.files[f.nextFD] = &openFile{path: p, node: n}
	return f.nextFD, native.OK
}

// Create implements native.Library.
func (f *Fake) Create(h native.Handle, p string, mode uint16) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("create")
	if code := f.checkHandle(h); code != native.OK {
		return code
	}
	parent, leaf, code := f.parentOf(p)
	if code != native.OK {
		return code
	}
	if _, ok := parent.children[leaf]; ok {
		return native.EEXIST
	}
	parent.children[leaf] = &node{
		mode:    fs.FileMode(mode) & fs.ModePerm,
		mtimeMS: nowMS(),
		atimeMS: nowMS(),
		owner:   defaultOwner,
		group:   defaultOwner,
	}
	return native.OK
}

func (f *Fake) file(fd native.FD) (*openFile, native.Errno) {
	of, ok := f.files[fd]
	if !ok {
		return nil, native.EBADF
	}
	return of, native.OK
}

// Close implements native.Library.
func (f *Fake) Close(h native.Handle, fd native.FD) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("close")
	if _, code := f.file(fd); code != native.OK {
		return code
	}
	delete(f.files, fd)
	return native.OK
}

// Flush implements native.Library.
func (f *Fake) Flush(h native.Handle, fd native.FD) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("flush")
	_, code := f.file(fd)
	return code
}

// Fsync implements native.Library.
func (f *Fake) Fsync(h native.Handle, fd native.FD) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("fsync")
	_, code := f.file(fd)
	return code
}

// Read implements native.Library.
func (f *Fake) Read(h native.Handle, fd native.FD, p []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("read")
	of, code := f.file(fd)
	if code != native.OK {
		return 0, code
	}
	n := f.readAt(of.node, p, of.pos)
	of.pos += int64(n)
	return n, native.OK
}

// Pread implements native.Library.
func (f *Fake) Pread(h native.Handle, fd native.FD, p []byte, off int64) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("pread")
	of, code := f.file(fd)
	if code != native.OK {
		return 0, code
	}
	if off < 0 {
		return 0, native.EINVAL
	}
	return f.readAt(of.node, p, off), native.OK
}

func (f *Fake) readAt(n *node, p []byte, off int64) int {
	if off >= int64(len(n.data)) {
		return 0
	}
	limit := len(p)
	if f.MaxRead > 0 && limit > f.MaxRead {
		limit = f.MaxRead
	}
	return copy(p[:limit], n.data[off:])
}

// Write implements native.Library.
func (f *Fake) Write(h native.Handle, fd native.FD, p []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("write")
	of, code := f.file(fd)
	if code != native.OK {
		return 0, code
	}
	limit := len(p)
	if f.MaxWrite > 0 && limit > f.MaxWrite {
		limit = f.MaxWrite
	}
	if f.AcceptLimit > 0 {
		left := f.AcceptLimit - f.accepted
		if left <= 0 {
			return 0, native.OK
		}
		if limit > left {
			limit = left
		}
	}
	node := of.node
	end := of.pos + int64(limit)
	if end > int64(len(node.data)) {
		grown := make([]byte, end)
		copy(grown, node.data)
		node.data = grown
	}
	copy(node.data[of.pos:end], p[:limit])
	of.pos = end
	node.mtimeMS = nowMS()
	f.accepted += limit
	return limit, native.OK
}

// Lseek implements native.Library.
func (f *Fake) Lseek(h native.Handle, fd native.FD, offset int64, whence int) (int64, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("lseek")
	of, code := f.file(fd)
	if code != native.OK {
		return 0, code
	}
	var pos int64
	switch whence {
	case native.SeekSet:
		pos = offset
	case native.SeekCur:
		pos = of.pos + offset
	default:
		return 0, native.EINVAL
	}
	if pos < 0 {
		return 0, native.EINVAL
	}
	of.pos = pos
	return pos, native.OK
}

func (f *Fake) statInto(p string, buf []byte, follow bool) (int, native.Errno) {
	n, code := f.resolve(p, follow)
	if code != native.OK {
		return 0, code
	}
	enc := native.EncodeStat(statOf(n))
	if len(enc) > len(buf) {
		return 0, native.EINVAL
	}
	return copy(buf, enc), native.OK
}

// Stat implements native.Library.
func (f *Fake) Stat(h native.Handle, p string, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("stat")
	if code := f.checkHandle(h); code != native.OK {
		return 0, code
	}
	return f.statInto(p, buf, true)
}

// Lstat implements native.Library.
func (f *Fake) Lstat(h native.Handle, p string, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("lstat")
	if code := f.checkHandle(h); code != native.OK {
		return 0, code
	}
	return f.statInto(p, buf, false)
}

// Access implements native.Library.
func (f *Fake) Access(h native.Handle, p string, flags int) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("access")
	_, code := f.resolve(p, true)
	return code
}

// Mkdir implements native.Library.
func (f *Fake) Mkdir(h native.Handle, p string, mode uint16) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("mkdir")
	if code := f.checkHandle(h); code != native.OK {
		return code
	}
	parent, leaf, code := f.parentOf(p)
	if code != native.OK {
		return code
	}
	if _, ok := parent.children[leaf]; ok {
		return native.EEXIST
	}
	parent.children[leaf] = &node{
		mode:     fs.ModeDir | fs.FileMode(mode)&fs.ModePerm,
		children: map[string]*node{},
		mtimeMS:  nowMS(),
		atimeMS:  nowMS(),
		owner:    defaultOwner,
		group:    defaultOwner,
	}
	return native.OK
}

// Delete implements native.Library.
func (f *Fake) Delete(h native.Handle, p string) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("delete")
	parent, leaf, code := f.parentOf(p)
	if code != native.OK {
		return code
	}
	n, ok := parent.children[leaf]
	if !ok {
		return native.ENOENT
	}
	if n.isDir() && len(n.children) > 0 {
		return native.ENOTEMPTY
	}
	delete(parent.children, leaf)
	return native.OK
}

// Rmr implements native.Library.
func (f *Fake) Rmr(h native.Handle, p string) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("rmr")
	parent, leaf, code := f.parentOf(p)
	if code != native.OK {
		return code
	}
	if _, ok := parent.children[leaf]; !ok {
		return native.ENOENT
	}
	delete(parent.children, leaf)
	return native.OK
}

// Readdir implements native.Library.
func (f *Fake) Readdir(h native.Handle, p string, cont int, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("readdir")
	var ents []native.DirEnt
	if cont == 0 {
		dir, code := f.resolve(p, true)
		if code != native.OK {
			return 0, code
		}
		if !dir.isDir() {
			return 0, native.ENOTDIR
		}
		names := make([]string, 0, len(dir.children))
		for name := range dir.children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ents = append(ents, native.DirEnt{Name: name, Stat: statOf(dir.children[name])})
		}
	} else {
		var ok bool
		ents, ok = f.pages[cont]
		if !ok {
			return 0, native.EBADF
		}
		delete(f.pages, cont)
	}
	take := len(ents)
	if f.PageEntries > 0 && take > f.PageEntries {
		take = f.PageEntries
	}
	page, rest := ents[:take], ents[take:]
	token := 0
	if len(rest) > 0 {
		f.nextTok++
		token = f.nextTok
		f.pages[token] = rest
	}
	enc, n := native.EncodeDirPage(page, len(rest), token)
	if len(enc) > len(buf) {
		return 0, native.EINVAL
	}
	copy(buf, enc)
	return n, native.OK
}

// Symlink implements native.Library.
func (f *Fake) Symlink(h native.Handle, target, link string) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("symlink")
	parent, leaf, code := f.parentOf(link)
	if code != native.OK {
		return code
	}
	if _, ok := parent.children[leaf]; ok {
		return native.EEXIST
	}
	parent.children[leaf] = &node{
		mode:    fs.ModeSymlink | 0o777,
		target:  target,
		mtimeMS: nowMS(),
		atimeMS: nowMS(),
		owner:   defaultOwner,
		group:   defaultOwner,
	}
	return native.OK
}

// Readlink implements native.Library.
func (f *Fake) Readlink(h native.Handle, p string, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("readlink")
	n, code := f.resolve(p, false)
	if code != native.OK {
		return 0, code
	}
	if !n.isLink() {
		return 0, native.EINVAL
	}
	// A target longer than the buffer fills it completely; callers grow
	// the buffer and retry when n == len(buf).
	if len(n.target) >= len(buf) {
		return copy(buf, n.target), native.OK
	}
	copy(buf, n.target)
	buf[len(n.target)] = 0
	return len(n.target), native.OK
}

// Rename implements native.Library.
func (f *Fake) Rename(h native.Handle, src, dst string) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("rename")
	sp, sleaf, code := f.parentOf(src)
	if code != native.OK {
		return code
	}
	n, ok := sp.children[sleaf]
	if !ok {
		return native.ENOENT
	}
	dp, dleaf, code := f.parentOf(dst)
	if code != native.OK {
		return code
	}
	if _, ok := dp.children[dleaf]; ok {
		return native.EEXIST
	}
	dp.children[dleaf] = n
	delete(sp.children, sleaf)
	return native.OK
}

// Chmod implements native.Library.
func (f *Fake) Chmod(h native.Handle, p string, mode uint16) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("chmod")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return code
	}
	n.mode = n.mode&^fs.ModePerm | fs.FileMode(mode)&fs.ModePerm
	return native.OK
}

// Chown implements native.Library.
func (f *Fake) Chown(h native.Handle, p string, owner, group string) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("chown")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return code
	}
	n.owner, n.group = owner, group
	return native.OK
}

// Truncate implements native.Library.
func (f *Fake) Truncate(h native.Handle, p string, size int64) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("truncate")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return code
	}
	if n.isDir() {
		return native.EISDIR
	}
	if size < 0 {
		return native.EINVAL
	}
	if size <= int64(len(n.data)) {
		n.data = n.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, n.data)
		n.data = grown
	}
	n.mtimeMS = nowMS()
	return native.OK
}

// Utime implements native.Library.
func (f *Fake) Utime(h native.Handle, p string, atimeMS, mtimeMS int64) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("utime")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return code
	}
	n.atimeMS, n.mtimeMS = atimeMS, mtimeMS
	return native.OK
}

// Concat implements native.Library.
func (f *Fake) Concat(h native.Handle, p string, srcs []string) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("concat")
	dst, code := f.resolve(p, true)
	if code != native.OK {
		return code
	}
	for _, src := range srcs {
		n, code := f.resolve(src, true)
		if code != native.OK {
			return code
		}
		dst.data = append(dst.data, n.data...)
	}
	dst.mtimeMS = nowMS()
	return native.OK
}

// StatVFS implements native.Library.
func (f *Fake) StatVFS(h native.Handle, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("statvfs")
	if code := f.checkHandle(h); code != native.OK {
		return 0, code
	}
	enc := native.EncodeVFSStat(native.VFSStat{Blocks: 1 << 30, Avail: 1 << 29})
	if len(enc) > len(buf) {
		return 0, native.EINVAL
	}
	return copy(buf, enc), native.OK
}

// Summary implements native.Library.
func (f *Fake) Summary(h native.Handle, p string, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("summary")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return 0, code
	}
	sum := summarize(n)
	enc := native.EncodeSummary(sum)
	if len(enc) > len(buf) {
		return 0, native.EINVAL
	}
	return copy(buf, enc), native.OK
}

func summarize(n *node) native.DirSummary {
	if !n.isDir() {
		return native.DirSummary{Size: int64(len(n.data)), Files: 1}
	}
	sum := native.DirSummary{Dirs: 1}
	for _, child := range n.children {
		s := summarize(child)
		sum.Size += s.Size
		sum.Files += s.Files
		sum.Dirs += s.Dirs
	}
	return sum
}

// GetXattr implements native.Library.
func (f *Fake) GetXattr(h native.Handle, p, name string, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("getxattr")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return 0, code
	}
	val, ok := n.xattrs[name]
	if !ok {
		return 0, native.ENODATA
	}
	return copy(buf, val), native.OK
}

// SetXattr implements native.Library.
func (f *Fake) SetXattr(h native.Handle, p, name string, value []byte, flags int) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("setxattr")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return code
	}
	_, exists := n.xattrs[name]
	if flags&native.XattrCreate != 0 && exists {
		return native.EEXIST
	}
	if flags&native.XattrReplace != 0 && !exists {
		return native.ENODATA
	}
	if n.xattrs == nil {
		n.xattrs = map[string][]byte{}
	}
	n.xattrs[name] = append([]byte(nil), value...)
	return native.OK
}

// RemoveXattr implements native.Library.
func (f *Fake) RemoveXattr(h native.Handle, p, name string) native.Errno {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("removexattr")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return code
	}
	if _, ok := n.xattrs[name]; !ok {
		return native.ENODATA
	}
	delete(n.xattrs, name)
	return native.OK
}

// ListXattr implements native.Library.
func (f *Fake) ListXattr(h native.Handle, p string, buf []byte) (int, native.Errno) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("listxattr")
	n, code := f.resolve(p, true)
	if code != native.OK {
		return 0, code
	}
	names := make([]string, 0, len(n.xattrs))
	for name := range n.xattrs {
		names = append(names, name)
	}
	sort.Strings(names)
	var enc []byte
	for _, name := range names {
		enc = append(enc, name...)
		enc = append(enc, 0)
	}
	return copy(buf, enc), native.OK
}

// OpenFDs reports how many native fds are still open, for leak assertions.
func (f *Fake) OpenFDs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}
