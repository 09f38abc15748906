package driftfs

import (
	"github.com/driftfs/driftfs-go/internal/native"
	"github.com/driftfs/driftfs-go/pkg/fserrors"
)

// errnoErr maps a native error number to the SDK taxonomy. Raw codes never
// leave this layer; callers always see a structured fserrors.Error.
func errnoErr(op, path string, code native.Errno) error {
	var kind fserrors.ErrorCode
	switch code {
	case native.ENOENT:
		kind = fserrors.ErrCodeNotFound
	case native.EACCES, native.EPERM, native.EROFS:
		kind = fserrors.ErrCodePermissionDenied
	case native.EEXIST:
		kind = fserrors.ErrCodeAlreadyExists
	case native.EISDIR:
		kind = fserrors.ErrCodeIsDirectory
	case native.ENOTDIR:
		kind = fserrors.ErrCodeNotDirectory
	case native.ENOTEMPTY:
		kind = fserrors.ErrCodeNotEmpty
	case native.EBADF:
		kind = fserrors.ErrCodeBadDescriptor
	default:
		kind = fserrors.ErrCodeNative
	}
	e := fserrors.New(kind, op, path, code.Error())
	e.Errno = int(code)
	return e
}

func errnoErr2(op, path, path2 string, code native.Errno) error {
	err := errnoErr(op, path, code)
	err.(*fserrors.Error).Path2 = path2
	return err
}
