package native

import "sync"

// Handle identifies one mounted filesystem instance inside the native
// library. It is opaque to the SDK; the only valid operations are passing it
// back to the Library that produced it.
type Handle int64

// FD identifies one open file inside a mounted instance.
type FD int32

// Access capability flags accepted by Library.Open. The native client does
// not support combined read/write descriptors; callers pass exactly one.
const (
	AccessRead  = 0x4
	AccessWrite = 0x2
)

// Seek origins understood by Library.Lseek. Seeking relative to the end of
// the file is not part of the native surface; the SDK emulates it against
// its own length ledger.
const (
	SeekSet = 0
	SeekCur = 1
)

// Xattr set flags, matching XATTR_CREATE/XATTR_REPLACE.
const (
	XattrCreate  = 1
	XattrReplace = 2
)

// Library is the synchronous, blocking call surface of the native DriftFS
// client. Every call may block on network or disk I/O. All methods follow
// the native convention: a zero Errno means success, a non-zero Errno
// carries the POSIX error code. Methods that fill a caller buffer return
// the number of bytes written.
//
// Calls on distinct handles and distinct fds are safe concurrently; the
// native client makes no guarantee for concurrent calls on the same fd.
type Library interface {
	// Mount initializes one filesystem instance. name selects the volume,
	// conf is the JSON-encoded option map (see driftfs.SessionConfig).
	Mount(name string, conf []byte) (Handle, Errno)
	// Umount releases a mount handle. The handle is invalid afterwards.
	Umount(h Handle) Errno

	Open(h Handle, path string, flags int) (FD, Errno)
	Create(h Handle, path string, mode uint16) Errno
	Close(h Handle, fd FD) Errno
	Flush(h Handle, fd FD) Errno
	Fsync(h Handle, fd FD) Errno
	// Read reads at most len(p) bytes at the fd's cursor. A zero count with
	// a zero Errno means end of stream.
	Read(h Handle, fd FD, p []byte) (int, Errno)
	// Pread reads at an explicit offset without moving the cursor.
	Pread(h Handle, fd FD, p []byte, off int64) (int, Errno)
	// Write writes from p at the fd's cursor and returns the number of
	// bytes the native client accepted, which may be short.
	Write(h Handle, fd FD, p []byte) (int, Errno)
	Lseek(h Handle, fd FD, offset int64, whence int) (int64, Errno)

	// Stat and Lstat fill buf with the stat wire format (DecodeStat).
	Stat(h Handle, path string, buf []byte) (int, Errno)
	Lstat(h Handle, path string, buf []byte) (int, Errno)
	Access(h Handle, path string, flags int) Errno
	Mkdir(h Handle, path string, mode uint16) Errno
	// Delete removes a file, symlink or empty directory.
	Delete(h Handle, path string) Errno
	// Rmr removes a directory tree recursively.
	Rmr(h Handle, path string) Errno
	// Readdir fills buf with one directory page (DecodeDirPage). The first
	// call passes cont == 0; when a page reports more entries remaining,
	// the caller passes the returned continuation token to fetch the next
	// page. A zero count means the listing is exhausted.
	Readdir(h Handle, path string, cont int, buf []byte) (int, Errno)
	Symlink(h Handle, target, link string) Errno
	Readlink(h Handle, path string, buf []byte) (int, Errno)
	Rename(h Handle, src, dst string) Errno
	Chmod(h Handle, path string, mode uint16) Errno
	Chown(h Handle, path string, owner, group string) Errno
	Truncate(h Handle, path string, size int64) Errno
	Utime(h Handle, path string, atimeMS, mtimeMS int64) Errno
	// Concat appends the content of srcs to path, in order.
	Concat(h Handle, path string, srcs []string) Errno

	StatVFS(h Handle, buf []byte) (int, Errno)
	Summary(h Handle, path string, buf []byte) (int, Errno)

	GetXattr(h Handle, path, name string, buf []byte) (int, Errno)
	SetXattr(h Handle, path, name string, value []byte, flags int) Errno
	RemoveXattr(h Handle, path, name string) Errno
	ListXattr(h Handle, path string, buf []byte) (int, Errno)
}

var (
	registerMu sync.Mutex
	registered Library
)

// Register installs the process-wide native library binding. The production
// binding registers itself at load time; tests register an in-memory fake.
// Registering twice replaces the previous binding, which is only safe before
// any session has been opened.
func Register(lib Library) {
	registerMu.Lock()
	defer registerMu.Unlock()
	registered = lib
}

// Default returns the registered native library, or nil when no binding has
// been loaded. Callers must treat nil as "native client not initialized"
// rather than panic.
func Default() Library {
	registerMu.Lock()
	defer registerMu.Unlock()
	return registered
}
