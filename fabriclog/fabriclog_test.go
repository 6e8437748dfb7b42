package fabriclog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWithFieldIsImmutable(t *testing.T) {
	base := New(Config{Service: "fabric", Version: "test", Level: logrus.InfoLevel, Format: FormatText})

	derived := base.WithField("component", "gal")

	assert.NotContains(t, base.fields, "component")
	assert.Equal(t, "gal", derived.fields["component"])
	assert.Equal(t, "fabric", derived.fields["service"])
}

func TestWithFieldsChain(t *testing.T) {
	base := NewNop()
	derived := base.WithFields(map[string]any{"a": 1}).WithFields(map[string]any{"b": 2})

	assert.Equal(t, 1, derived.fields["a"])
	assert.Equal(t, 2, derived.fields["b"])
}

func TestWithErrorNilIsNoop(t *testing.T) {
	base := NewNop()
	assert.Same(t, base, base.WithError(nil))
}
