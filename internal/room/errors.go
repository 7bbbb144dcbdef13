package room

import (
	"errors"

	"blockroom/internal/net/proto"
	"blockroom/internal/player"
)

var (
	ErrRoomExists      = errors.New("room: already exists")
	ErrRoomNotFound    = errors.New("room: not found")
	ErrRoomFull        = errors.New("room: full")
	ErrRoomStarted     = errors.New("room: round in progress")
	ErrNicknameTaken   = errors.New("room: nickname taken")
	ErrInvalidNickname = errors.New("room: invalid nickname")
	ErrInvalidRoomID   = errors.New("room: invalid room id")
	ErrInvalidMode     = errors.New("room: invalid mode")
	ErrNotOwner        = errors.New("room: requester is not the owner")
	ErrPlayersNotReady = errors.New("room: players not ready")
	ErrNotMember       = errors.New("room: not a member")

	// errRoomClosed is returned by operations that reached a room after it
	// was reclaimed. The manager retries joins on a fresh room.
	errRoomClosed = errors.New("room: closed")
)

// RejectReason maps an operation error to its intent-rejected reason.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, errRoomClosed), errors.Is(err, ErrInvalidRoomID):
		return proto.RejectRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return proto.RejectRoomFull
	case errors.Is(err, ErrRoomStarted), errors.Is(err, player.ErrRoundStarted):
		return proto.RejectRoomStarted
	case errors.Is(err, ErrNicknameTaken):
		return proto.RejectNicknameTaken
	case errors.Is(err, ErrInvalidNickname):
		return proto.RejectInvalidNickname
	case errors.Is(err, ErrInvalidMode):
		return proto.RejectInvalidMode
	case errors.Is(err, ErrNotOwner):
		return proto.RejectNotOwner
	case errors.Is(err, ErrPlayersNotReady):
		return proto.RejectPlayersNotReady
	case errors.Is(err, ErrNotMember):
		return proto.RejectNotJoined
	case errors.Is(err, player.ErrNotWaiting):
		return proto.RejectNotWaiting
	case errors.Is(err, player.ErrNotPlaying), errors.Is(err, player.ErrNotReady):
		return proto.RejectNotPlaying
	case errors.Is(err, player.ErrModeDisallowed):
		return proto.RejectModeDisallowed
	default:
		return proto.RejectInternal
	}
}
