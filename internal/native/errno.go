package native

import "fmt"

// Errno is the numeric error code returned by the native client. Values are
// POSIX errno numbers; zero means success. The native library reports
// failures as negative return values, which the binding normalizes to a
// positive Errno before it crosses into Go.
type Errno int32

const (
	OK              Errno = 0
	EPERM           Errno = 1
	ENOENT          Errno = 2
	EINTR           Errno = 4
	EIO             Errno = 5
	EBADF           Errno = 9
	EACCES          Errno = 13
	EEXIST          Errno = 17
	ENOTDIR         Errno = 20
	EISDIR          Errno = 21
	EINVAL          Errno = 22
	ENOSPC          Errno = 28
	ESPIPE          Errno = 29
	EROFS           Errno = 30
	ENAMETOOLONG    Errno = 36
	ENOTEMPTY       Errno = 39
	ENODATA         Errno = 61
	EPROTONOSUPPORT Errno = 93
)

var errnoText = map[Errno]string{
	EPERM:           "operation not permitted",
	ENOENT:          "no such file or directory",
	EINTR:           "interrupted call",
	EIO:             "input/output error",
	EBADF:           "bad file descriptor",
	EACCES:          "permission denied",
	EEXIST:          "file exists",
	ENOTDIR:         "not a directory",
	EISDIR:          "is a directory",
	EINVAL:          "invalid argument",
	ENOSPC:          "no space left on device",
	ESPIPE:          "illegal seek",
	EROFS:           "read-only file system",
	ENAMETOOLONG:    "file name too long",
	ENOTEMPTY:       "directory not empty",
	ENODATA:         "no data available",
	EPROTONOSUPPORT: "protocol not supported",
}

func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int32(e))
}

// FromReturn converts a native return value into a count and an Errno,
// following the convention that negative returns carry the error code.
func FromReturn(code int) (int, Errno) {
	if code < 0 {
		return 0, Errno(-code)
	}
	return code, OK
}
