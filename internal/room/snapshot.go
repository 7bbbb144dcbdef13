package room

import (
	"blockroom/internal/net/proto"
	"blockroom/internal/player"
	"blockroom/internal/rules"
)

// Descriptor is the lobby summary of a room served by the HTTP lookups.
type Descriptor struct {
	ID         string     `json:"id"`
	Owner      string     `json:"owner,omitempty"`
	Mode       rules.Mode `json:"mode"`
	Started    bool       `json:"isStarted"`
	Players    []string   `json:"players"`
	MaxPlayers int        `json:"maxPlayers"`
}

// Has reports whether nickname is a member.
func (d Descriptor) Has(nickname string) bool {
	for _, p := range d.Players {
		if p == nickname {
			return true
		}
	}
	return false
}

// Full reports whether another player can fit.
func (d Descriptor) Full() bool {
	return len(d.Players) >= d.MaxPlayers
}

// PlayerState converts a player view to its wire form.
func PlayerState(view player.View) proto.PlayerState {
	cells := view.Board.Cells()
	wire := make([]int, len(cells))
	for i, c := range cells {
		wire[i] = int(c)
	}
	state := proto.PlayerState{
		Nickname:       view.Nickname,
		Status:         string(view.Status),
		Score:          view.Progress.Score,
		Rows:           view.Progress.Rows,
		Level:          view.Progress.Level,
		Lives:          view.Lives,
		DropIntervalMs: view.DropInterval.Milliseconds(),
		Board: proto.BoardState{
			Rows:       view.Board.Rows(),
			Cols:       view.Board.Cols(),
			HiddenRows: view.Board.HiddenRows(),
			Cells:      wire,
		},
	}
	if view.Piece != nil {
		state.Piece = &proto.PieceState{
			Shape:    view.Piece.Shape.String(),
			Rotation: view.Piece.Rotation,
			Row:      view.Piece.Row,
			Col:      view.Piece.Col,
		}
	}
	return state
}

func standing(view player.View) proto.Standing {
	return proto.Standing{
		Nickname: view.Nickname,
		Status:   string(view.Status),
		Score:    view.Progress.Score,
		Rows:     view.Progress.Rows,
		Level:    view.Progress.Level,
	}
}
