package gal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"knowledgefabric/fabricerr"
)

func TestClassifyNilIsNil(t *testing.T) {
	assert.NoError(t, classify(nil))
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	err := classify(context.DeadlineExceeded)
	assert.True(t, fabricerr.Is(err, fabricerr.Timeout))
}

func TestClassifyCanceled(t *testing.T) {
	err := classify(context.Canceled)
	assert.True(t, fabricerr.Is(err, fabricerr.Cancelled))
}

func TestClassifyUnknownErrorIsBackendUnavailable(t *testing.T) {
	err := classify(errors.New("connection refused"))
	assert.True(t, fabricerr.Is(err, fabricerr.BackendUnavailable))
}
