package ragerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(New(NotFound, "missing")))
	assert.Equal(t, Internal, KindOf(errors.New("plain error")))
	assert.Equal(t, DependencyTransient, KindOf(Wrap(DependencyTransient, "upstream", errors.New("boom"))))
}

func TestIs(t *testing.T) {
	err := New(Validation, "bad input")
	assert.True(t, Is(err, Validation))
	assert.False(t, Is(err, NotFound))
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(New(DependencyTransient, "x")))
	assert.True(t, Transient(New(MalformedUpstream, "x")))
	assert.False(t, Transient(New(DependencyFatal, "x")))
	assert.False(t, Transient(New(Internal, "x")))
	assert.False(t, Transient(errors.New("plain")))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(DependencyFatal, "context", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "context")
	assert.Contains(t, err.Error(), "root cause")
}
