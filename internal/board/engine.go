package board

import "errors"

// ErrSpawnBlocked is returned when a new piece cannot be placed.
var ErrSpawnBlocked = errors.New("board: spawn blocked")

// Progress is the per-player tally the engine updates on every lock.
type Progress struct {
	Score int `json:"score"`
	Rows  int `json:"rows"`
	Level int `json:"level"`
}

// DropResult describes the outcome of advancing a piece.
type DropResult struct {
	// Locked is true when the piece could not advance and was written into
	// Board. Piece is then the locked position and no longer active.
	Locked       bool
	Board        Board
	Piece        Tetromino
	LinesCleared int
	ScoreDelta   int
	Progress     Progress
	// TopOut is set when the locked piece touches the hidden spawn rows.
	TopOut bool
	// Distance is the number of rows the piece travelled.
	Distance int
}

// Engine applies the board rules. All methods are pure: they never modify
// their inputs and return the same result for the same arguments.
type Engine struct {
	rules Rules
}

// NewEngine returns an engine with normalized rules.
func NewEngine(rules Rules) *Engine {
	return &Engine{rules: rules.Normalized()}
}

// Rules exposes the normalized rule set.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Spawn places the next shape at the top centre of the board.
func (e *Engine) Spawn(b Board, rng Randomizer) (Tetromino, Board, error) {
	shape := ShapeO
	if rng != nil {
		shape = rng.Next()
	}
	piece := Tetromino{
		Shape: shape,
		Row:   0,
		Col:   (b.Cols() - shape.Size()) / 2,
	}
	if !b.Fits(piece) {
		return piece, b, ErrSpawnBlocked
	}
	return piece, b, nil
}

// TryMove shifts the piece one column left (dx=-1) or right (dx=1).
func (e *Engine) TryMove(b Board, t Tetromino, dx int) (Tetromino, bool) {
	if dx != -1 && dx != 1 {
		return t, false
	}
	next := t.shifted(0, dx)
	if !b.Fits(next) {
		return t, false
	}
	return next, true
}

// TryRotate turns the piece clockwise (dir=1) or counter-clockwise (dir=-1),
// trying each kick offset in order.
func (e *Engine) TryRotate(b Board, t Tetromino, dir int) (Tetromino, bool) {
	if dir != -1 && dir != 1 {
		return t, false
	}
	turned := t.turned(dir)
	for _, kick := range e.rules.Kicks {
		candidate := turned.shifted(0, kick)
		if b.Fits(candidate) {
			return candidate, true
		}
	}
	return t, false
}

// Drop advances the piece by one row, locking it when blocked.
func (e *Engine) Drop(b Board, t Tetromino, p Progress) DropResult {
	next := t.shifted(1, 0)
	if b.Fits(next) {
		return DropResult{Board: b, Piece: next, Progress: p, Distance: 1}
	}
	return e.lock(b, t, p)
}

// HardDrop moves the piece straight down and locks it.
func (e *Engine) HardDrop(b Board, t Tetromino, p Progress) DropResult {
	distance := 0
	for {
		res := e.Drop(b, t, p)
		if res.Locked {
			bonus := distance * e.rules.HardDropPoints
			res.ScoreDelta += bonus
			res.Progress.Score += bonus
			res.Distance = distance
			return res
		}
		t = res.Piece
		distance++
	}
}

func (e *Engine) lock(b Board, t Tetromino, p Progress) DropResult {
	topOut := false
	for _, cell := range t.Cells() {
		if cell.Row < b.HiddenRows() {
			topOut = true
			break
		}
	}
	merged, lines := b.Merge(t).clearFullRows()
	delta := e.rules.Score(lines, p.Level)
	next := Progress{
		Score: p.Score + delta,
		Rows:  p.Rows + lines,
	}
	next.Level = e.rules.Level(next.Rows)
	return DropResult{
		Locked:       true,
		Board:        merged,
		Piece:        t,
		LinesCleared: lines,
		ScoreDelta:   delta,
		Progress:     next,
		TopOut:       topOut,
	}
}
