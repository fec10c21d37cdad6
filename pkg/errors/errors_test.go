package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/chris-alexander-pop/pktbus/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.New(errors.CodeFull, "channel full", cause)

	assert.Contains(t, err.Error(), "FULL")
	assert.Contains(t, err.Error(), "channel full")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, cause, err.Unwrap())
}

func TestAppError_Is(t *testing.T) {
	err := errors.New(errors.CodeTimeout, "send timed out", nil)
	assert.True(t, stderrors.Is(err, errors.New(errors.CodeTimeout, "", nil)))
	assert.False(t, stderrors.Is(err, errors.New(errors.CodeFull, "", nil)))
}

func TestWrap_PreservesCode(t *testing.T) {
	base := errors.New(errors.CodeNotFound, "subscription not found", nil)
	wrapped := errors.Wrap(base, "unsubscribe failed")

	assert.Equal(t, errors.CodeNotFound, errors.Code(wrapped))
	assert.ErrorIs(t, wrapped, base)
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, "anything"))
}

func TestCode_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, errors.CodeInternal, errors.Code(stderrors.New("plain")))
}
