package player

// Status is the lifecycle state of a player within a room.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusReady    Status = "ready"
	StatusPlaying  Status = "playing"
	StatusGameOver Status = "game_over"
	StatusOut      Status = "out"
)

// Terminal reports whether the player can no longer take part in the round.
func (s Status) Terminal() bool {
	return s == StatusGameOver || s == StatusOut
}

// Action names the board intents a playing player may submit.
type Action string

const (
	ActionMove     Action = "move"
	ActionRotate   Action = "rotate"
	ActionDrop     Action = "drop"
	ActionHardDrop Action = "hard-drop"
	ActionReset    Action = "reset"
	// ActionGravity is the drop the room schedules on the player's behalf.
	ActionGravity Action = "gravity"
)

// Intent is a board request. Dir is -1 or 1 for moves and rotations.
type Intent struct {
	Action Action
	Dir    int
}
