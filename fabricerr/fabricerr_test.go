package fabricerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndOf(t *testing.T) {
	err := New(ValidationError, "missing name")
	kind, ok := Of(err)
	assert.True(t, ok)
	assert.Equal(t, ValidationError, kind)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(BackendUnavailable, "could not reach bolt endpoint", cause)

	assert.True(t, Is(err, BackendUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsMatchesOnKindOnly(t *testing.T) {
	a := New(EntityNotFound, "project 1")
	b := New(EntityNotFound, "project 2")
	assert.True(t, errors.Is(a, b))

	c := New(DuplicateID, "project 2")
	assert.False(t, errors.Is(a, c))
}

func TestOfFalseForPlainError(t *testing.T) {
	_, ok := Of(fmt.Errorf("plain"))
	assert.False(t, ok)
}
