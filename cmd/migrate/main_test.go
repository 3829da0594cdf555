package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	name, n, err := parseCommand([]string{"up"})
	require.NoError(t, err)
	assert.Equal(t, "up", name)
	assert.Zero(t, n)

	name, n, err = parseCommand([]string{"steps", "-2"})
	require.NoError(t, err)
	assert.Equal(t, "steps", name)
	assert.Equal(t, -2, n)

	for _, args := range [][]string{
		nil,
		{"sideways"},
		{"up", "3"},
		{"force"},
		{"force", "three"},
		{"steps", "1", "2"},
	} {
		_, _, err := parseCommand(args)
		assert.Error(t, err, args)
	}
}
