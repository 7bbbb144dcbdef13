package room

import (
	"time"

	"blockroom/internal/board"
	"blockroom/internal/rules"
)

const (
	DefaultMaxPlayers        = 6
	DefaultReservationTTL    = 2 * time.Minute
	DefaultMailboxSize       = 256
	DefaultMaxNicknameLength = 16
)

// Config captures the room manager tunables.
type Config struct {
	MaxPlayers int
	Rules      rules.Config
	// ReservationTTL bounds how long a room created without a player
	// survives before it is reclaimed.
	ReservationTTL    time.Duration
	MailboxSize       int
	MaxNicknameLength int
	// CreateOnJoin lets a join create the room it names.
	CreateOnJoin bool
	// Seed makes piece sequences reproducible when non-zero.
	Seed int64
	// Randomizer overrides how each player's piece source is built.
	Randomizer func(seed int64) board.Randomizer
}

func DefaultConfig() Config {
	return Config{
		MaxPlayers:        DefaultMaxPlayers,
		Rules:             rules.DefaultConfig(),
		ReservationTTL:    DefaultReservationTTL,
		MailboxSize:       DefaultMailboxSize,
		MaxNicknameLength: DefaultMaxNicknameLength,
		CreateOnJoin:      true,
	}
}

func (c Config) normalized() Config {
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	c.Rules = c.Rules.Normalized()
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = DefaultReservationTTL
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = DefaultMailboxSize
	}
	if c.MaxNicknameLength <= 0 {
		c.MaxNicknameLength = DefaultMaxNicknameLength
	}
	if c.Randomizer == nil {
		kind := c.Rules.Randomizer
		c.Randomizer = func(seed int64) board.Randomizer {
			return board.NewRandomizer(kind, seed)
		}
	}
	return c
}
