package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialNames(t *testing.T) {
	g := NewSequentialNames("")
	assert.Equal(t, "rule-1", g.Generate())
	assert.Equal(t, "rule-2", g.Generate())

	g = NewSequentialNames("alarm")
	assert.Equal(t, "alarm-1", g.Generate())
}
