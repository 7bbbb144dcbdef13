// Package rules holds the per-mode tunables shared by players and rooms.
package rules

import (
	"time"

	"blockroom/internal/board"
)

// Mode selects the win condition and drop-speed curve of a round.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeHeart    Mode = "heart"
	ModeSprint   Mode = "sprint"
)

// Modes lists the modes in the order the lobby cycles through them.
var Modes = []Mode{ModeStandard, ModeHeart, ModeSprint}

// ParseMode validates a wire mode name.
func ParseMode(raw string) (Mode, bool) {
	for _, mode := range Modes {
		if string(mode) == raw {
			return mode, true
		}
	}
	return "", false
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	_, ok := ParseMode(string(m))
	return ok
}

// Next returns the mode after m in lobby order, wrapping around.
func (m Mode) Next() Mode {
	for i, mode := range Modes {
		if mode == m {
			return Modes[(i+1)%len(Modes)]
		}
	}
	return ModeStandard
}

// Config captures the tunables of every mode. The scoring table, level step,
// life count and sprint target are all policy and can be overridden.
type Config struct {
	Board       board.Rules
	VisibleRows int
	Cols        int
	HiddenRows  int
	Randomizer  board.RandomizerKind

	// HeartLives is the number of top-outs a HEART player survives minus one.
	HeartLives int
	// SprintTarget is the cumulative cleared-row count that wins a SPRINT round.
	SprintTarget int

	BaseInterval        time.Duration
	MinInterval         time.Duration
	SprintMinInterval   time.Duration
	SprintLevelMultiple int
}

// DefaultConfig returns the classic 20x10 ruleset.
func DefaultConfig() Config {
	return Config{
		Board:               board.DefaultRules(),
		VisibleRows:         board.DefaultVisibleRows,
		Cols:                board.DefaultCols,
		HiddenRows:          board.DefaultHiddenRows,
		Randomizer:          board.RandomizerUniform,
		HeartLives:          3,
		SprintTarget:        40,
		BaseInterval:        time.Second,
		MinInterval:         200 * time.Millisecond,
		SprintMinInterval:   100 * time.Millisecond,
		SprintLevelMultiple: 2,
	}
}

// Normalized replaces missing values with defaults.
func (c Config) Normalized() Config {
	defaults := DefaultConfig()
	c.Board = c.Board.Normalized()
	if c.VisibleRows <= 0 {
		c.VisibleRows = defaults.VisibleRows
	}
	if c.Cols < 4 {
		c.Cols = defaults.Cols
	}
	if c.HiddenRows < 0 {
		c.HiddenRows = defaults.HiddenRows
	}
	if c.Randomizer == "" {
		c.Randomizer = defaults.Randomizer
	}
	if c.HeartLives <= 0 {
		c.HeartLives = defaults.HeartLives
	}
	if c.SprintTarget <= 0 {
		c.SprintTarget = defaults.SprintTarget
	}
	if c.BaseInterval <= 0 {
		c.BaseInterval = defaults.BaseInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = defaults.MinInterval
	}
	if c.SprintMinInterval <= 0 {
		c.SprintMinInterval = defaults.SprintMinInterval
	}
	if c.SprintLevelMultiple <= 0 {
		c.SprintLevelMultiple = defaults.SprintLevelMultiple
	}
	return c
}

// NewBoard returns an empty board with the configured dimensions.
func (c Config) NewBoard() board.Board {
	return board.New(c.VisibleRows, c.Cols, c.HiddenRows)
}

// DropInterval is the gravity cadence for a player at level in mode. SPRINT
// speeds up faster per level than the other modes.
func (c Config) DropInterval(mode Mode, level int) time.Duration {
	if level < 0 {
		level = 0
	}
	if mode == ModeSprint {
		return c.BaseInterval/time.Duration(c.SprintLevelMultiple*level+1) + c.SprintMinInterval
	}
	return c.BaseInterval/time.Duration(level+1) + c.MinInterval
}

// Lives is the starting life count of a player in mode.
func (c Config) Lives(mode Mode) int {
	if mode == ModeHeart {
		return c.HeartLives
	}
	return 1
}
