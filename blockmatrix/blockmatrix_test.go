// Copyright (c) 2026 dllu

package blockmatrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNew(t *testing.T) {
	b, err := New([]int{2, 3, 1}, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, b.NumBlocks())
	assert.Equal(t, 4, b.Rows())
	assert.Equal(t, 4, b.FullRows())
	assert.Equal(t, 6, b.Cols())
	assert.Equal(t, 0, b.Offset(0))
	assert.Equal(t, 2, b.Offset(1))
	assert.Equal(t, 5, b.Offset(2))
	assert.Equal(t, 6, b.Offset(3))
	assert.Equal(t, 3, b.BlockDim(1))
	assert.True(t, b.WindowIsFull())

	_, err = New([]int{2, 0}, 4)
	assert.Error(t, err)
	_, err = New([]int{2}, -1)
	assert.Error(t, err)

	b, err = New([]int{1}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Rows())
	assert.Nil(t, b.Mat())
	assert.Nil(t, b.Block(0))
}

func TestBlockViewsWriteThrough(t *testing.T) {
	b, err := New([]int{2, 1}, 2)
	require.NoError(t, err)

	b.Block(0).Copy(mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	b.Block(1).Copy(mat.NewDense(2, 1, []float64{5, 6}))

	assert.Equal(t, 4.0, b.Mat().At(1, 1))
	assert.Equal(t, 5.0, b.Mat().At(0, 2))

	// Writing through a view must be visible in the full matrix.
	b.Block(0).Set(0, 1, 9)
	assert.Equal(t, 9.0, b.Mat().At(0, 1))

	r := b.Range(0, 2)
	assert.Equal(t, 9.0, r.At(0, 1))
	assert.Equal(t, 6.0, r.At(1, 2))
}

func TestWindow(t *testing.T) {
	b, err := New([]int{1, 1, 1}, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b.Mat().Set(i, j, float64(10*i+j))
		}
	}

	require.NoError(t, b.SetRowStart(1))
	require.NoError(t, b.SetFirstBlock(1))
	assert.Equal(t, 2, b.Rows())
	assert.Equal(t, 2, b.NumBlocks())
	assert.Equal(t, 2, b.Cols())
	assert.False(t, b.WindowIsFull())

	// Block 0 of the shrunk window is column 1 of the storage.
	blk := b.Block(0)
	assert.Equal(t, 11.0, blk.At(0, 0))
	assert.Equal(t, 21.0, blk.At(1, 0))
	assert.Equal(t, 0, b.Offset(0))
	assert.Equal(t, 1, b.Offset(1))

	require.NoError(t, b.SetRowEnd(2))
	assert.Equal(t, 1, b.Rows())

	assert.Error(t, b.SetRowStart(5))
	assert.Error(t, b.SetRowEnd(0))
	assert.Error(t, b.SetFirstBlock(7))

	b.ResetWindow()
	assert.True(t, b.WindowIsFull())
}

func TestColumn(t *testing.T) {
	b, err := New([]int{2, 1}, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		b.Mat().Set(i, 2, float64(i+1))
	}
	v := b.Column(1, 0, 1)
	require.NotNil(t, v)
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, 2.0, v.AtVec(0))
	assert.Equal(t, 3.0, v.AtVec(1))
}

func TestCopyStructureAndAssign(t *testing.T) {
	src, err := New([]int{2, 1}, 3)
	require.NoError(t, err)
	src.Mat().Set(0, 0, 7)
	src.Mat().Set(2, 2, 8)

	var dst BlockMatrix
	dst.CopyStructureFrom(src)
	assert.Equal(t, 2, dst.NumBlocks())
	assert.Equal(t, 3, dst.Rows())
	assert.Equal(t, 0.0, dst.Mat().At(0, 0))

	dst.AssignNoalias(src)
	assert.Equal(t, 7.0, dst.Mat().At(0, 0))
	assert.Equal(t, 8.0, dst.Mat().At(2, 2))

	// Structure copies follow the window, not the full storage.
	require.NoError(t, src.SetRowStart(1))
	require.NoError(t, src.SetFirstBlock(1))
	dst.AssignNoalias(src)
	assert.Equal(t, 1, dst.NumBlocks())
	assert.Equal(t, 2, dst.Rows())
	assert.Equal(t, 8.0, dst.Mat().At(1, 0))
	assert.True(t, dst.WindowIsFull())
}

func TestSwapAndClone(t *testing.T) {
	a, err := New([]int{1}, 1)
	require.NoError(t, err)
	a.Mat().Set(0, 0, 1)
	b, err := New([]int{2, 1}, 2)
	require.NoError(t, err)
	b.Mat().Set(1, 2, 5)

	a.Swap(b)
	assert.Equal(t, 2, a.NumBlocks())
	assert.Equal(t, 5.0, a.Mat().At(1, 2))
	assert.Equal(t, 1, b.NumBlocks())
	assert.Equal(t, 1.0, b.Mat().At(0, 0))

	c := a.Clone()
	c.Mat().Set(1, 2, 9)
	assert.Equal(t, 5.0, a.Mat().At(1, 2))
	assert.Equal(t, 9.0, c.Mat().At(1, 2))
}
