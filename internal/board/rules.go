package board

// Rules tunes scoring, levelling and rotation kicks.
type Rules struct {
	// LinePoints is indexed by the number of rows cleared by a single lock
	// and is multiplied by (level+1).
	LinePoints [5]int
	// RowsPerLevel is the cumulative cleared-row step between levels.
	RowsPerLevel int
	// HardDropPoints is awarded per row a piece travels during a hard drop.
	HardDropPoints int
	// Kicks are the column offsets tried in order when a rotation collides.
	Kicks []int
}

// DefaultRules mirrors the classic scoring table.
func DefaultRules() Rules {
	return Rules{
		LinePoints:     [5]int{0, 40, 100, 300, 1200},
		RowsPerLevel:   10,
		HardDropPoints: 2,
		Kicks:          []int{0, 1, -1, 2, -2},
	}
}

// Normalized fills unset values with defaults.
func (r Rules) Normalized() Rules {
	defaults := DefaultRules()
	if r.RowsPerLevel <= 0 {
		r.RowsPerLevel = defaults.RowsPerLevel
	}
	if r.HardDropPoints < 0 {
		r.HardDropPoints = 0
	}
	if len(r.Kicks) == 0 {
		r.Kicks = defaults.Kicks
	}
	if r.LinePoints == ([5]int{}) {
		r.LinePoints = defaults.LinePoints
	}
	return r
}

// Score returns the points for clearing lines rows at once at level.
func (r Rules) Score(lines, level int) int {
	if lines <= 0 {
		return 0
	}
	if lines >= len(r.LinePoints) {
		lines = len(r.LinePoints) - 1
	}
	return r.LinePoints[lines] * (level + 1)
}

// Level derives the level from the cumulative number of cleared rows.
func (r Rules) Level(rows int) int {
	if rows <= 0 || r.RowsPerLevel <= 0 {
		return 0
	}
	return rows / r.RowsPerLevel
}
