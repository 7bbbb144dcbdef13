package board

// Tetromino is the active falling piece. Row and Col locate the top-left
// corner of the shape matrix on the board; they may be negative while the
// matrix overhangs a wall as long as the occupied cells stay in bounds.
type Tetromino struct {
	Shape    Shape `json:"shape"`
	Rotation int   `json:"rotation"`
	Row      int   `json:"row"`
	Col      int   `json:"col"`
}

// Cells returns the absolute board coordinates covered by the piece.
func (t Tetromino) Cells() []Point {
	offsets := t.Shape.Offsets(t.Rotation)
	for i := range offsets {
		offsets[i].Row += t.Row
		offsets[i].Col += t.Col
	}
	return offsets
}

func (t Tetromino) shifted(dRow, dCol int) Tetromino {
	t.Row += dRow
	t.Col += dCol
	return t
}

func (t Tetromino) turned(dir int) Tetromino {
	t.Rotation = normalizeRotation(t.Rotation + dir)
	return t
}
