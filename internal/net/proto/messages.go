// Package proto defines the websocket event protocol: the closed sets of
// client intents and server messages, their payloads and the envelope
// codecs that carry them.
package proto

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client event names.
const (
	EventJoin        = "player-join"
	EventStartGame   = "game-start"
	EventChangeMode  = "change-mode"
	EventMove        = "player-move"
	EventDrop        = "player-drop"
	EventHardDrop    = "player-hard-drop"
	EventRotate      = "player-rotate"
	EventReset       = "player-reset"
	EventSendMessage = "send-message"
	EventLeave       = "player-leave"
)

// Server event names. Several share a name with the client event that
// triggers them.
const (
	EventChat           = "get-message"
	EventJoined         = EventJoin
	EventGameStarted    = "game-start-broadcast"
	EventPlayerReady    = "player-ready"
	EventPlayerOut      = "player-out"
	EventModeChanged    = EventChangeMode
	EventRoundEnd       = "round-end"
	EventIntentRejected = "intent-rejected"
)

// Intent is a client request. The set is closed: only the types in this
// package implement it.
type Intent interface {
	Event() string
	protoIntent()
}

// Join asks to enter a room, creating it when allowed.
type Join struct {
	RoomName string `json:"roomName"`
	Nickname string `json:"nickname"`
}

// StartGame starts the round for the owner and marks anyone else ready.
type StartGame struct{}

// ChangeMode sets the room mode. An empty mode cycles to the next one.
type ChangeMode struct {
	Mode string `json:"mode,omitempty"`
}

// Move shifts the active piece one column; Dir is -1 or 1.
type Move struct {
	Dir int `json:"dir"`
}

// Drop advances the active piece one row.
type Drop struct{}

// HardDrop drops the active piece until it locks.
type HardDrop struct{}

// Rotate turns the active piece; Dir 0 means clockwise.
type Rotate struct {
	Dir int `json:"dir"`
}

// Reset spends a heart-mode life to clear the board.
type Reset struct{}

// SendMessage posts a chat line to RoomID.
type SendMessage struct {
	RoomID string `json:"roomId"`
	Data   string `json:"data"`
}

// Leave exits the room and keeps the connection open.
type Leave struct{}

func (Join) Event() string        { return EventJoin }
func (StartGame) Event() string   { return EventStartGame }
func (ChangeMode) Event() string  { return EventChangeMode }
func (Move) Event() string        { return EventMove }
func (Drop) Event() string        { return EventDrop }
func (HardDrop) Event() string    { return EventHardDrop }
func (Rotate) Event() string      { return EventRotate }
func (Reset) Event() string       { return EventReset }
func (SendMessage) Event() string { return EventSendMessage }
func (Leave) Event() string       { return EventLeave }

func (Join) protoIntent()        {}
func (StartGame) protoIntent()   {}
func (ChangeMode) protoIntent()  {}
func (Move) protoIntent()        {}
func (Drop) protoIntent()        {}
func (HardDrop) protoIntent()    {}
func (Rotate) protoIntent()      {}
func (Reset) protoIntent()       {}
func (SendMessage) protoIntent() {}
func (Leave) protoIntent()       {}

// Broadcast is a server message payload. Like Intent, the set is closed.
type Broadcast interface {
	Event() string
	protoBroadcast()
}

// Message is a server message inside its envelope. Seq is the room's
// broadcast sequence, or 0 for unicast replies outside the room stream.
type Message struct {
	Seq     uint64
	Payload Broadcast
}

// Event reports the envelope event name.
func (m Message) Event() string {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Event()
}

// BoardState is a board on the wire: row-major cell colors, 0 for empty.
type BoardState struct {
	Rows       int   `json:"rows"`
	Cols       int   `json:"cols"`
	HiddenRows int   `json:"hiddenRows"`
	Cells      []int `json:"cells"`
}

type PieceState struct {
	Shape    string `json:"shape"`
	Rotation int    `json:"rotation"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
}

type PlayerState struct {
	Nickname       string      `json:"nickname"`
	Status         string      `json:"status"`
	Score          int         `json:"score"`
	Rows           int         `json:"rows"`
	Level          int         `json:"level"`
	Lives          int         `json:"lives,omitempty"`
	DropIntervalMs int64       `json:"dropTime"`
	Board          BoardState  `json:"board"`
	Piece          *PieceState `json:"piece,omitempty"`
}

// RoomState is a full room snapshot.
type RoomState struct {
	ID      string        `json:"id"`
	Owner   string        `json:"owner"`
	Mode    string        `json:"mode"`
	Started bool          `json:"isStarted"`
	Players []PlayerState `json:"players"`
}

// Player returns the named player's state.
func (r RoomState) Player(nickname string) (PlayerState, bool) {
	for _, p := range r.Players {
		if p.Nickname == nickname {
			return p, true
		}
	}
	return PlayerState{}, false
}

// ChatMessage relays a send-message to the room.
type ChatMessage struct {
	RoomID   string `json:"roomId"`
	Nickname string `json:"nickname"`
	Data     string `json:"data"`
}

// Joined announces a new member with a full snapshot.
type Joined struct {
	Nickname string    `json:"nickname"`
	Room     RoomState `json:"room"`
}

// GameStarted carries the snapshot taken when the round begins.
type GameStarted struct {
	Room RoomState `json:"room"`
}

// PlayerDelta reports the result of one board intent, including rejected
// moves and rotations, which carry Accepted false and unchanged state.
type PlayerDelta struct {
	Action       string      `json:"action"`
	Accepted     bool        `json:"accepted"`
	LinesCleared int         `json:"linesCleared,omitempty"`
	Player       PlayerState `json:"player"`
}

// Delta actions. Gravity is a server scheduled drop and travels as
// player-drop.
const (
	ActionMove     = "move"
	ActionRotate   = "rotate"
	ActionDrop     = "drop"
	ActionHardDrop = "hard-drop"
	ActionGravity  = "gravity"
	ActionReset    = "reset"
)

type PlayerReady struct {
	Nickname string `json:"nickname"`
}

// PlayerOut reports a member leaving the room. Owner is the owner after
// the departure.
type PlayerOut struct {
	Nickname string `json:"nickname"`
	Owner    string `json:"owner"`
	Reason   string `json:"reason,omitempty"`
}

type ModeChanged struct {
	Mode string `json:"mode"`
}

type Standing struct {
	Nickname string `json:"nickname"`
	Status   string `json:"status"`
	Score    int    `json:"score"`
	Rows     int    `json:"rows"`
	Level    int    `json:"level"`
}

// RoundEnd closes a round. Room is the re-armed lobby snapshot.
type RoundEnd struct {
	Winner    string     `json:"winner,omitempty"`
	Reason    string     `json:"reason"`
	Standings []Standing `json:"standings"`
	Room      RoomState  `json:"room"`
}

// Round end reasons.
const (
	RoundEndLastStanding = "last_standing"
	RoundEndNoSurvivors  = "no_survivors"
	RoundEndTarget       = "target_reached"
)

// IntentRejected is sent only to the client whose intent was refused.
// Intent is the event name of the refused intent.
type IntentRejected struct {
	Intent string `json:"event"`
	Reason string `json:"reason"`
}

func (ChatMessage) Event() string    { return EventChat }
func (Joined) Event() string         { return EventJoined }
func (GameStarted) Event() string    { return EventGameStarted }
func (PlayerReady) Event() string    { return EventPlayerReady }
func (PlayerOut) Event() string      { return EventPlayerOut }
func (ModeChanged) Event() string    { return EventModeChanged }
func (RoundEnd) Event() string       { return EventRoundEnd }
func (IntentRejected) Event() string { return EventIntentRejected }

// Event maps the delta action to its broadcast name.
func (d PlayerDelta) Event() string {
	switch d.Action {
	case ActionMove:
		return EventMove
	case ActionRotate:
		return EventRotate
	case ActionReset:
		return EventReset
	default:
		return EventDrop
	}
}

func (ChatMessage) protoBroadcast()    {}
func (Joined) protoBroadcast()         {}
func (GameStarted) protoBroadcast()    {}
func (PlayerDelta) protoBroadcast()    {}
func (PlayerReady) protoBroadcast()    {}
func (PlayerOut) protoBroadcast()      {}
func (ModeChanged) protoBroadcast()    {}
func (RoundEnd) protoBroadcast()       {}
func (IntentRejected) protoBroadcast() {}
