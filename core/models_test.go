package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFromContent(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := IDFromContent("hello world")
		b := IDFromContent("hello world")
		assert.Equal(t, a, b)
	})

	t.Run("different content different id", func(t *testing.T) {
		a := IDFromContent("hello world")
		b := IDFromContent("hello mars")
		assert.NotEqual(t, a, b)
	})

	t.Run("empty content has an id", func(t *testing.T) {
		assert.NotZero(t, IDFromContent(""))
	})
}

func TestNewSegment(t *testing.T) {
	t.Run("stable id for same text and position", func(t *testing.T) {
		a := NewSegment(3, "some text")
		b := NewSegment(3, "some text")
		assert.Equal(t, a.Id, b.Id)
		assert.Equal(t, 3, a.Index)
		assert.Equal(t, "some text", a.Text)
	})

	t.Run("repeated text at different positions gets distinct ids", func(t *testing.T) {
		a := NewSegment(0, "repeated passage")
		b := NewSegment(7, "repeated passage")
		assert.NotEqual(t, a.Id, b.Id)
	})
}
