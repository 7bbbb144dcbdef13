package board

import (
	"errors"
	"fmt"
)

const (
	DefaultVisibleRows = 20
	DefaultCols        = 10
	DefaultHiddenRows  = 2
)

// ErrDimensions reports a board or cell slice with an impossible shape.
var ErrDimensions = errors.New("board: invalid dimensions")

// Board is an immutable grid of cells. The first HiddenRows rows form the
// spawn region above the visible play field. Every operation that changes
// the grid returns a new Board and leaves the receiver untouched.
type Board struct {
	rows   int
	cols   int
	hidden int
	cells  []Cell
}

// New builds an empty board with the requested visible height, width and
// hidden spawn rows.
func New(visibleRows, cols, hiddenRows int) Board {
	if visibleRows < 1 {
		visibleRows = DefaultVisibleRows
	}
	if cols < 4 {
		cols = DefaultCols
	}
	if hiddenRows < 0 {
		hiddenRows = 0
	}
	rows := visibleRows + hiddenRows
	return Board{
		rows:   rows,
		cols:   cols,
		hidden: hiddenRows,
		cells:  make([]Cell, rows*cols),
	}
}

// FromCells rebuilds a board from a flat row-major slice covering every row,
// hidden ones included.
func FromCells(rows, cols, hiddenRows int, cells []Cell) (Board, error) {
	if rows <= 0 || cols <= 0 || hiddenRows < 0 || hiddenRows >= rows {
		return Board{}, fmt.Errorf("%w: %dx%d hidden=%d", ErrDimensions, rows, cols, hiddenRows)
	}
	if len(cells) != rows*cols {
		return Board{}, fmt.Errorf("%w: got %d cells for %dx%d", ErrDimensions, len(cells), rows, cols)
	}
	copied := make([]Cell, len(cells))
	copy(copied, cells)
	return Board{rows: rows, cols: cols, hidden: hiddenRows, cells: copied}, nil
}

// Rows is the total number of rows, hidden spawn rows included.
func (b Board) Rows() int { return b.rows }

// Cols is the board width.
func (b Board) Cols() int { return b.cols }

// HiddenRows is the height of the spawn region above the play field.
func (b Board) HiddenRows() int { return b.hidden }

// IsZero reports whether the board was never initialised.
func (b Board) IsZero() bool { return b.rows == 0 }

// InBounds reports whether p addresses a cell of the grid.
func (b Board) InBounds(p Point) bool {
	return p.Row >= 0 && p.Row < b.rows && p.Col >= 0 && p.Col < b.cols
}

// At returns the cell at p, or Empty when p is outside the grid.
func (b Board) At(p Point) Cell {
	if !b.InBounds(p) {
		return Empty
	}
	return b.cells[p.Row*b.cols+p.Col]
}

// Cells returns a copy of the grid in row-major order.
func (b Board) Cells() []Cell {
	out := make([]Cell, len(b.cells))
	copy(out, b.cells)
	return out
}

// Filled counts occupied cells.
func (b Board) Filled() int {
	n := 0
	for _, c := range b.cells {
		if c.Filled() {
			n++
		}
	}
	return n
}

// Cleared returns an empty board with the same dimensions.
func (b Board) Cleared() Board {
	return Board{rows: b.rows, cols: b.cols, hidden: b.hidden, cells: make([]Cell, len(b.cells))}
}

// Fits reports whether every cell of t is inside the grid and unoccupied.
func (b Board) Fits(t Tetromino) bool {
	if !t.Shape.Valid() {
		return false
	}
	for _, p := range t.Cells() {
		if !b.InBounds(p) || b.At(p).Filled() {
			return false
		}
	}
	return true
}

// Merge returns a copy of the board with t written into it. Cells of t that
// fall outside the grid are discarded.
func (b Board) Merge(t Tetromino) Board {
	next := b.clone()
	color := t.Shape.Color()
	for _, p := range t.Cells() {
		if next.InBounds(p) {
			next.cells[p.Row*next.cols+p.Col] = color
		}
	}
	return next
}

// clearFullRows removes every complete row at once and shifts the rows above
// down, returning the new board and the number of rows removed.
func (b Board) clearFullRows() (Board, int) {
	kept := make([][]Cell, 0, b.rows)
	cleared := 0
	for row := 0; row < b.rows; row++ {
		line := b.cells[row*b.cols : (row+1)*b.cols]
		if rowFull(line) {
			cleared++
			continue
		}
		kept = append(kept, line)
	}
	if cleared == 0 {
		return b, 0
	}
	next := b.Cleared()
	offset := cleared * b.cols
	for i, line := range kept {
		copy(next.cells[offset+i*b.cols:], line)
	}
	return next, cleared
}

func (b Board) clone() Board {
	cells := make([]Cell, len(b.cells))
	copy(cells, b.cells)
	return Board{rows: b.rows, cols: b.cols, hidden: b.hidden, cells: cells}
}

func rowFull(line []Cell) bool {
	for _, c := range line {
		if !c.Filled() {
			return false
		}
	}
	return true
}
