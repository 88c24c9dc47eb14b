// Copyright (c) 2026 dllu

// Package blockmatrix provides a dense matrix sliced into column groups,
// with a movable row window and first-block cursor. It is the storage
// layout shared by factors and conditionals: one contiguous matrix whose
// columns are grouped per variable, addressed through lightweight views.
package blockmatrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BlockMatrix is a dense matrix together with cumulative column-group
// offsets and a window. Block i of the window spans columns
// [offsets[firstBlock+i], offsets[firstBlock+i+1]) and rows
// [rowStart, rowEnd) of the underlying storage.
//
// All views returned by Block, Range and Column share storage with the
// BlockMatrix. They are invalidated by CopyStructureFrom, AssignNoalias
// and Swap.
type BlockMatrix struct {
	data       *mat.Dense // nil when the matrix has zero rows or columns
	offsets    []int      // cumulative column offsets, offsets[0] == 0
	rowStart   int
	rowEnd     int
	firstBlock int
}

// New returns a zeroed BlockMatrix with the given column-group widths and
// row count. Every width must be positive; rows may be zero.
func New(blockDims []int, rows int) (*BlockMatrix, error) {
	if rows < 0 {
		return nil, fmt.Errorf("BlockMatrix.New: negative row count %d", rows)
	}
	offsets := make([]int, len(blockDims)+1)
	for i, d := range blockDims {
		if d <= 0 {
			return nil, fmt.Errorf("BlockMatrix.New: block %d has non-positive width %d", i, d)
		}
		offsets[i+1] = offsets[i] + d
	}
	b := &BlockMatrix{offsets: offsets, rowEnd: rows}
	if rows > 0 && offsets[len(offsets)-1] > 0 {
		b.data = mat.NewDense(rows, offsets[len(offsets)-1], nil)
	}
	return b, nil
}

// NewEmpty returns a BlockMatrix with no blocks and no rows.
func NewEmpty() *BlockMatrix {
	return &BlockMatrix{offsets: []int{0}}
}

// NumBlocks returns the number of blocks in the current window.
func (b *BlockMatrix) NumBlocks() int { return len(b.offsets) - 1 - b.firstBlock }

// Rows returns the number of rows in the current window.
func (b *BlockMatrix) Rows() int { return b.rowEnd - b.rowStart }

// FullRows returns the number of rows of the underlying storage.
func (b *BlockMatrix) FullRows() int {
	if b.data == nil {
		return 0
	}
	r, _ := b.data.Dims()
	return r
}

// Cols returns the number of columns in the current window.
func (b *BlockMatrix) Cols() int {
	return b.offsets[len(b.offsets)-1] - b.offsets[b.firstBlock]
}

// FullCols returns the total column count of the underlying storage.
func (b *BlockMatrix) FullCols() int { return b.offsets[len(b.offsets)-1] }

// Offset returns the starting column of window block i, relative to the
// window. Offset(NumBlocks()) is the window's column count.
func (b *BlockMatrix) Offset(i int) int {
	return b.offsets[b.firstBlock+i] - b.offsets[b.firstBlock]
}

// BlockDim returns the column width of window block i.
func (b *BlockMatrix) BlockDim(i int) int {
	return b.offsets[b.firstBlock+i+1] - b.offsets[b.firstBlock+i]
}

// Block returns a view of window block i, or nil when the window has no
// rows. Writing through the view writes the underlying storage.
func (b *BlockMatrix) Block(i int) *mat.Dense { return b.Range(i, i+1) }

// Range returns a view of window blocks [i, j), or nil when the window
// has no rows or the range has no columns.
func (b *BlockMatrix) Range(i, j int) *mat.Dense {
	if i < 0 || j < i || b.firstBlock+j > len(b.offsets)-1 {
		panic(fmt.Sprintf("BlockMatrix.Range: blocks [%d,%d) out of range of %d", i, j, b.NumBlocks()))
	}
	c0, c1 := b.offsets[b.firstBlock+i], b.offsets[b.firstBlock+j]
	if b.Rows() == 0 || c1 == c0 {
		return nil
	}
	return b.data.Slice(b.rowStart, b.rowEnd, c0, c1).(*mat.Dense)
}

// Column returns a single-column view of window block i, column col
// within the block, spanning rows [row0, rowEnd). row0 is absolute.
func (b *BlockMatrix) Column(i, col, row0 int) mat.Vector {
	c := b.offsets[b.firstBlock+i] + col
	if c >= b.offsets[b.firstBlock+i+1] {
		panic(fmt.Sprintf("BlockMatrix.Column: column %d out of block %d", col, i))
	}
	if row0 >= b.rowEnd {
		return nil
	}
	return b.data.Slice(row0, b.rowEnd, c, c+1).(*mat.Dense).ColView(0)
}

// Mat returns the full underlying storage, ignoring the window. It is
// nil when the matrix has zero rows or columns.
func (b *BlockMatrix) Mat() *mat.Dense { return b.data }

// RowStart returns the top of the row window.
func (b *BlockMatrix) RowStart() int { return b.rowStart }

// RowEnd returns the bottom of the row window.
func (b *BlockMatrix) RowEnd() int { return b.rowEnd }

// FirstBlock returns the block cursor.
func (b *BlockMatrix) FirstBlock() int { return b.firstBlock }

// SetRowStart moves the top of the row window.
func (b *BlockMatrix) SetRowStart(r int) error {
	if r < 0 || r > b.rowEnd {
		return fmt.Errorf("BlockMatrix.SetRowStart: row %d outside [0,%d]", r, b.rowEnd)
	}
	b.rowStart = r
	return nil
}

// SetRowEnd moves the bottom of the row window.
func (b *BlockMatrix) SetRowEnd(r int) error {
	if r < b.rowStart || r > b.FullRows() {
		return fmt.Errorf("BlockMatrix.SetRowEnd: row %d outside [%d,%d]", r, b.rowStart, b.FullRows())
	}
	b.rowEnd = r
	return nil
}

// SetFirstBlock moves the block cursor.
func (b *BlockMatrix) SetFirstBlock(i int) error {
	if i < 0 || i > len(b.offsets)-1 {
		return fmt.Errorf("BlockMatrix.SetFirstBlock: block %d outside [0,%d]", i, len(b.offsets)-1)
	}
	b.firstBlock = i
	return nil
}

// ResetWindow restores the full row window and the zero block cursor.
func (b *BlockMatrix) ResetWindow() {
	b.rowStart = 0
	b.rowEnd = b.FullRows()
	b.firstBlock = 0
}

// WindowIsFull reports whether the window covers all rows and blocks.
func (b *BlockMatrix) WindowIsFull() bool {
	return b.rowStart == 0 && b.rowEnd == b.FullRows() && b.firstBlock == 0
}

// CopyStructureFrom resizes the receiver to the window shape of other:
// same window block widths, same window row count, zeroed storage, full
// window. Existing views into the receiver are invalidated.
func (b *BlockMatrix) CopyStructureFrom(other *BlockMatrix) {
	n := other.NumBlocks()
	offsets := make([]int, n+1)
	for i := 1; i <= n; i++ {
		offsets[i] = other.Offset(i)
	}
	rows := other.Rows()
	b.offsets = offsets
	b.rowStart = 0
	b.rowEnd = rows
	b.firstBlock = 0
	if rows > 0 && offsets[n] > 0 {
		b.data = mat.NewDense(rows, offsets[n], nil)
	} else {
		b.data = nil
	}
}

// AssignNoalias copies the window contents of other into the receiver,
// resizing first. other must not share storage with the receiver.
func (b *BlockMatrix) AssignNoalias(other *BlockMatrix) {
	b.CopyStructureFrom(other)
	if b.data == nil {
		return
	}
	b.data.Copy(other.data.Slice(
		other.rowStart, other.rowEnd,
		other.offsets[other.firstBlock], other.offsets[len(other.offsets)-1],
	))
}

// Swap exchanges storage, offsets and window with other.
func (b *BlockMatrix) Swap(other *BlockMatrix) {
	*b, *other = *other, *b
}

// Clone returns a deep copy of the receiver, window included.
func (b *BlockMatrix) Clone() *BlockMatrix {
	c := &BlockMatrix{
		offsets:    append([]int(nil), b.offsets...),
		rowStart:   b.rowStart,
		rowEnd:     b.rowEnd,
		firstBlock: b.firstBlock,
	}
	if b.data != nil {
		c.data = mat.DenseCopyOf(b.data)
	}
	return c
}
