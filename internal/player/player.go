// Package player implements the per-participant state machine: status,
// board, active piece, score and drop timing.
package player

import (
	"errors"
	"fmt"
	"time"

	"blockroom/internal/board"
	"blockroom/internal/rules"
)

var (
	ErrNotWaiting     = errors.New("player: not waiting")
	ErrRoundStarted   = errors.New("player: round already started")
	ErrNotReady       = errors.New("player: not ready")
	ErrNotPlaying     = errors.New("player: not playing")
	ErrUnknownAction  = errors.New("player: unknown action")
	ErrModeDisallowed = errors.New("player: action not available in this mode")
)

// Outcome summarises what an intent did to the player.
type Outcome struct {
	Action          Action
	Accepted        bool
	Locked          bool
	LinesCleared    int
	ScoreDelta      int
	ToppedOut       bool
	LifeLost        bool
	StatusChanged   bool
	IntervalChanged bool
	ReachedTarget   bool
}

// View is a read-only copy of the player's state.
type View struct {
	Nickname     string
	Status       Status
	Progress     board.Progress
	Lives        int
	DropInterval time.Duration
	Board        board.Board
	Piece        *board.Tetromino
}

// Player owns one board. It is not safe for concurrent use: the owning room
// serialises every call.
type Player struct {
	nickname string
	status   Status
	mode     rules.Mode
	progress board.Progress
	lives    int
	interval time.Duration
	grid     board.Board
	piece    *board.Tetromino

	cfg    rules.Config
	engine *board.Engine
	rng    board.Randomizer
}

// New creates a waiting player with an empty board.
func New(nickname string, cfg rules.Config, engine *board.Engine, rng board.Randomizer) *Player {
	cfg = cfg.Normalized()
	if engine == nil {
		engine = board.NewEngine(cfg.Board)
	}
	return &Player{
		nickname: nickname,
		status:   StatusWaiting,
		mode:     rules.ModeStandard,
		grid:     cfg.NewBoard(),
		cfg:      cfg,
		engine:   engine,
		rng:      rng,
	}
}

func (p *Player) Nickname() string                   { return p.nickname }
func (p *Player) Status() Status                     { return p.status }
func (p *Player) Progress() board.Progress           { return p.progress }
func (p *Player) Lives() int                         { return p.lives }
func (p *Player) DropInterval() time.Duration        { return p.interval }
func (p *Player) Board() board.Board                 { return p.grid }
func (p *Player) Alive() bool                        { return p.status == StatusPlaying }
func (p *Player) SetRandomizer(rng board.Randomizer) { p.rng = rng }

// Piece returns the active tetromino, if any.
func (p *Player) Piece() (board.Tetromino, bool) {
	if p.piece == nil {
		return board.Tetromino{}, false
	}
	return *p.piece, true
}

// View copies the current state.
func (p *Player) View() View {
	view := View{
		Nickname:     p.nickname,
		Status:       p.status,
		Progress:     p.progress,
		Lives:        p.lives,
		DropInterval: p.interval,
		Board:        p.grid,
	}
	if p.piece != nil {
		piece := *p.piece
		view.Piece = &piece
	}
	return view
}

// MarkReady moves a waiting player to READY while the room is in its lobby.
func (p *Player) MarkReady(roomStarted bool) error {
	if roomStarted {
		return ErrRoundStarted
	}
	if p.status != StatusWaiting {
		return fmt.Errorf("%w: status %s", ErrNotWaiting, p.status)
	}
	p.status = StatusReady
	return nil
}

// Start begins a round in mode: fresh board, first piece, starting lives.
func (p *Player) Start(mode rules.Mode) error {
	if p.status != StatusReady {
		return fmt.Errorf("%w: status %s", ErrNotReady, p.status)
	}
	p.mode = mode
	p.status = StatusPlaying
	p.progress = board.Progress{}
	p.lives = p.cfg.Lives(mode)
	p.interval = p.cfg.DropInterval(mode, 0)
	p.grid = p.cfg.NewBoard()
	p.piece = nil
	var out Outcome
	p.spawn(&out)
	return nil
}

// Apply runs a board intent. Only PLAYING players accept intents; a
// rejected move or rotation returns an Outcome with Accepted false and no
// error.
func (p *Player) Apply(intent Intent) (Outcome, error) {
	out := Outcome{Action: intent.Action}
	if p.status != StatusPlaying {
		return out, fmt.Errorf("%w: status %s", ErrNotPlaying, p.status)
	}

	switch intent.Action {
	case ActionMove:
		if p.piece == nil {
			return out, nil
		}
		next, ok := p.engine.TryMove(p.grid, *p.piece, intent.Dir)
		p.piece = &next
		out.Accepted = ok
	case ActionRotate:
		if p.piece == nil {
			return out, nil
		}
		next, ok := p.engine.TryRotate(p.grid, *p.piece, intent.Dir)
		p.piece = &next
		out.Accepted = ok
	case ActionDrop, ActionGravity:
		if p.piece == nil {
			return out, nil
		}
		out.Accepted = true
		res := p.engine.Drop(p.grid, *p.piece, p.progress)
		if !res.Locked {
			piece := res.Piece
			p.piece = &piece
			break
		}
		p.afterLock(res, &out)
	case ActionHardDrop:
		if p.piece == nil {
			return out, nil
		}
		out.Accepted = true
		p.afterLock(p.engine.HardDrop(p.grid, *p.piece, p.progress), &out)
	case ActionReset:
		if p.mode != rules.ModeHeart {
			return out, ErrModeDisallowed
		}
		out.Accepted = true
		p.loseLife(&out)
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownAction, intent.Action)
	}
	return out, nil
}

// Eliminate moves the player to OUT from any state and releases the board.
// It reports whether the status changed.
func (p *Player) Eliminate() bool {
	if p.status == StatusOut {
		return false
	}
	p.status = StatusOut
	p.piece = nil
	p.grid = p.grid.Cleared()
	p.interval = 0
	return true
}

// Disconnect is Eliminate for a player whose transport went away.
func (p *Player) Disconnect() bool {
	return p.Eliminate()
}

// Rearm returns the player to the lobby after a round has ended.
func (p *Player) Rearm() {
	p.status = StatusWaiting
	p.progress = board.Progress{}
	p.lives = 0
	p.interval = 0
	p.piece = nil
	p.grid = p.cfg.NewBoard()
}

func (p *Player) afterLock(res board.DropResult, out *Outcome) {
	out.Locked = true
	out.LinesCleared = res.LinesCleared
	out.ScoreDelta = res.ScoreDelta
	previousLevel := p.progress.Level
	p.grid = res.Board
	p.progress = res.Progress
	p.piece = nil

	if p.progress.Level != previousLevel {
		p.interval = p.cfg.DropInterval(p.mode, p.progress.Level)
		out.IntervalChanged = true
	}
	if p.mode == rules.ModeSprint && p.progress.Rows >= p.cfg.SprintTarget {
		out.ReachedTarget = true
		return
	}
	if res.TopOut {
		p.topOut(out)
		return
	}
	p.spawn(out)
}

func (p *Player) spawn(out *Outcome) {
	piece, _, err := p.engine.Spawn(p.grid, p.rng)
	if err != nil {
		p.topOut(out)
		return
	}
	p.piece = &piece
}

func (p *Player) topOut(out *Outcome) {
	out.ToppedOut = true
	p.piece = nil
	if p.mode == rules.ModeHeart {
		p.loseLife(out)
		return
	}
	p.status = StatusGameOver
	p.interval = 0
	out.StatusChanged = true
}

// loseLife spends one HEART life. With lives left the board is wiped and
// play continues; the last life makes the player OUT.
func (p *Player) loseLife(out *Outcome) {
	p.lives--
	out.LifeLost = true
	p.piece = nil
	if p.lives <= 0 {
		p.lives = 0
		p.Eliminate()
		out.StatusChanged = true
		return
	}
	p.grid = p.grid.Cleared()
	p.spawn(out)
}
