package fserrors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	e := New(ErrCodeNotFound, "open", "/data/f.txt", "no such file or directory")
	e.Errno = 2
	assert.Equal(t, "open /data/f.txt: FILE_NOT_FOUND: no such file or directory (errno 2)", e.Error())

	bare := New(ErrCodeShortWrite, "", "", "")
	assert.Equal(t, "SHORT_WRITE", bare.Error())
}

func TestCategories(t *testing.T) {
	tests := map[ErrorCode]ErrorCategory{
		ErrCodeMountFailed:     CategorySession,
		ErrCodeSessionBusy:     CategorySession,
		ErrCodeStreamClosed:    CategoryStream,
		ErrCodeInvalidSeek:     CategoryStream,
		ErrCodeNotFound:        CategoryPath,
		ErrCodeNotEmpty:        CategoryPath,
		ErrCodeNative:          CategoryNative,
		ErrorCode("WHO_KNOWS"): CategoryNative,
	}
	for code, want := range tests {
		assert.Equal(t, want, New(code, "op", "", "").Category, code)
	}
}

func TestSentinelMatching(t *testing.T) {
	notFound := New(ErrCodeNotFound, "stat", "/x", "")
	assert.True(t, errors.Is(notFound, fs.ErrNotExist))
	assert.False(t, errors.Is(notFound, fs.ErrExist))

	exists := New(ErrCodeAlreadyExists, "open", "/x", "")
	assert.True(t, errors.Is(exists, fs.ErrExist))

	denied := New(ErrCodePermissionDenied, "open", "/x", "")
	assert.True(t, errors.Is(denied, fs.ErrPermission))

	closed := New(ErrCodeStreamClosed, "read", "/x", "")
	assert.True(t, errors.Is(closed, fs.ErrClosed))
	assert.True(t, errors.Is(New(ErrCodeSessionClosed, "stat", "", ""), fs.ErrClosed))
}

func TestCodeMatching(t *testing.T) {
	a := New(ErrCodeInvalidSeek, "seek", "/x", "negative position")
	b := New(ErrCodeInvalidSeek, "seek", "/y", "other message")
	assert.True(t, errors.Is(a, b), "same code matches regardless of detail")
	assert.False(t, errors.Is(a, New(ErrCodeShortWrite, "", "", "")))
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("yaml: line 3: mapping values are not allowed")
	e := Wrap(ErrCodeMountFailed, "mount", "vol", cause)

	require.ErrorIs(t, e, cause)
	assert.Equal(t, cause.Error(), e.Message)
	assert.Same(t, cause, e.Unwrap())
}

func TestPredicates(t *testing.T) {
	inner := New(ErrCodeNotFound, "stat", "/x", "")
	wrapped := fmt.Errorf("while syncing: %w", inner)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsNotFound(errors.New("plain")))
	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))
	assert.Equal(t, ErrCodeNative, CodeOf(errors.New("plain")))

	assert.True(t, IsClosed(New(ErrCodeStreamClosed, "read", "/x", "")))
	assert.True(t, IsClosed(New(ErrCodeSessionClosed, "stat", "", "")))
	assert.False(t, IsClosed(inner))
	assert.False(t, IsNotFound(nil))
}
