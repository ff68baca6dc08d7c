package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := Precondition(stderrors.New("eigenvalue 1.2"), "observable out of bound")
	wrapped := Wrapf(base, "chunk %d", 3)

	assert.Equal(t, CodePreconditionViolation, GetCode(wrapped))
	assert.Equal(t, "chunk 3: observable out of bound: eigenvalue 1.2", wrapped.Error())
}

func TestWrapPlainErrorIsInternal(t *testing.T) {
	err := Wrap(stderrors.New("boom"), "step failed")
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestCodeVisibleThroughFmtWrapping(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	err := fmt.Errorf("outer: %w", SimulationFailed(sentinel, "simulate noisy"))

	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeSimulationFailed, GetCode(err))
	assert.True(t, Is(err, sentinel))
	assert.Equal(t, "UNKNOWN", GetCode(sentinel))
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeStorageError, stderrors.New("disk full"))
	assert.Equal(t, CodeStorageError, GetCode(err))
	assert.Equal(t, "disk full", err.Error())
}
