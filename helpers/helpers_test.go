package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	tests := []struct {
		name     string
		items    []string
		size     int
		expected [][]string
	}{
		{"Empty", nil, 2, nil},
		{"SingleChunk", []string{"a", "b"}, 5, [][]string{{"a", "b"}}},
		{"ExactChunks", []string{"a", "b", "c", "d"}, 2, [][]string{{"a", "b"}, {"c", "d"}}},
		{"Remainder", []string{"a", "b", "c"}, 2, [][]string{{"a", "b"}, {"c"}}},
		{"InvalidSize", []string{"a"}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Chunk(tt.items, tt.size))
		})
	}
}

func TestToJsonString(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ToJsonString(map[string]int{"a": 1}))
	assert.Equal(t, "", ToJsonString(make(chan int)))
}

func TestIntToString(t *testing.T) {
	assert.Equal(t, "-1", IntToString(-1))
}
