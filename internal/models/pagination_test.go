package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	start, end, info := Paginate(25, 1, 10)
	assert.Equal(t, 0, start)
	assert.Equal(t, 10, end)
	assert.Equal(t, 3, info.TotalPages)
	assert.True(t, info.HasNext)
	assert.False(t, info.HasPrevious)

	start, end, info = Paginate(25, 3, 10)
	assert.Equal(t, 20, start)
	assert.Equal(t, 25, end)
	assert.False(t, info.HasNext)
	assert.True(t, info.HasPrevious)

	// Past the end yields an empty range, not an error.
	start, end, info = Paginate(25, 10, 10)
	assert.Equal(t, start, end)
	assert.False(t, info.HasNext)

	start, end, info = Paginate(0, 1, 10)
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
	assert.Equal(t, 0, info.TotalPages)
	assert.False(t, info.HasNext)
	assert.False(t, info.HasPrevious)
}
