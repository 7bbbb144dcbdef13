package proto

// Reasons carried by IntentRejected.
const (
	RejectMalformed        = "malformed"
	RejectUnknownEvent     = "unknown_event"
	RejectInvalidDirection = "invalid_direction"
	RejectInvalidMode      = "invalid_mode"
	RejectNotJoined        = "not_joined"
	RejectAlreadyJoined    = "already_joined"
	RejectWrongRoom        = "wrong_room"
	RejectRoomNotFound     = "room_not_found"
	RejectRoomFull         = "room_full"
	RejectRoomStarted      = "room_started"
	RejectNicknameTaken    = "nickname_taken"
	RejectInvalidNickname  = "invalid_nickname"
	RejectNotOwner         = "not_owner"
	RejectPlayersNotReady  = "players_not_ready"
	RejectNotWaiting       = "not_waiting"
	RejectNotPlaying       = "not_playing"
	RejectModeDisallowed   = "mode_disallowed"
	RejectInternal         = "internal"
)

// Rejected builds the unicast reply for a refused intent.
func Rejected(event, reason string) Message {
	return Message{Payload: IntentRejected{Intent: event, Reason: reason}}
}
