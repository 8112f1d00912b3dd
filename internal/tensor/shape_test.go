package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Shape
		want      Shape
		broadcast bool
		wantErr   bool
	}{
		{"equal", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, true, false},
		{"scalar", Shape{}, Shape{2, 4, 4, 8}, Shape{2, 4, 4, 8}, true, false},
		{"channel vector", Shape{2, 4, 4, 8}, Shape{8}, Shape{2, 4, 4, 8}, true, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestBroadcastOffsets(t *testing.T) {
	// [2,1] broadcast to [2,3]: each row repeats its single source element.
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, BroadcastOffsets(Shape{2, 1}, Shape{2, 3}))

	// [3] broadcast to [2,3]: the row repeats.
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, BroadcastOffsets(Shape{3}, Shape{2, 3}))

	// Scalar broadcast.
	assert.Equal(t, []int{0, 0, 0, 0}, BroadcastOffsets(Shape{}, Shape{2, 2}))

	// Identity.
	assert.Equal(t, []int{0, 1, 2, 3}, BroadcastOffsets(Shape{2, 2}, Shape{2, 2}))

	assert.Panics(t, func() { BroadcastOffsets(Shape{2}, Shape{3}) })
}

func TestShapeHelpers(t *testing.T) {
	s := Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.Equal(t, 2, s.NormalizeDim(-1))
	assert.Panics(t, func() { s.NormalizeDim(3) })
	require.Error(t, Shape{2, 0}.Validate())

	clone := s.Clone()
	clone[0] = 9
	assert.Equal(t, 2, s[0])
}
