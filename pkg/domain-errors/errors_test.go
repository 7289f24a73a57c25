package dErrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	t.Run("nil cause yields nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, CodeInternal, "should vanish"))
	})

	t.Run("preserves the cause chain", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(cause, CodeInternal, "query ancestors")
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestHasCode(t *testing.T) {
	t.Run("finds a code deep in the chain", func(t *testing.T) {
		inner := New(CodeNotFound, "record missing")
		outer := fmt.Errorf("handling request: %w", inner)
		assert.True(t, HasCode(outer, CodeNotFound))
		assert.False(t, HasCode(outer, CodeConflict))
	})

	t.Run("uncoded errors match nothing", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	})
}

func TestCodeOf(t *testing.T) {
	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "record missing")
		outer := Wrap(inner, CodeInternal, "lookup failed")
		assert.Equal(t, CodeInternal, CodeOf(outer))
	})

	t.Run("uncoded errors default to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	})
}
