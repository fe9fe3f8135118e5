package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"arena/server/internal/world"
	"arena/server/internal/world/state"
)

// Client intent identifiers.
const (
	ActionMove = "move"
	ActionFire = "fire"
)

// Server message type identifiers.
const (
	TypePlayerNew   = "player_new"
	TypePlayerState = "player_state"
	TypePlayerPart  = "player_part"
)

// MaxNameLength bounds the join name in runes.
const MaxNameLength = 32

var (
	// ErrMalformed marks a payload that cannot be decoded. The sender is out
	// of sync with the protocol and must be disconnected.
	ErrMalformed = errors.New("proto: malformed message")
	// ErrUnsupportedAction marks a well-formed intent with an unknown action.
	ErrUnsupportedAction = errors.New("proto: unsupported action")
	// ErrInvalidName marks a join frame that does not carry a usable name.
	ErrInvalidName = errors.New("proto: invalid player name")
)

// ClientMessage is the wire form of an intent.
type ClientMessage struct {
	Action string    `json:"action" jsonschema:"enum=move,enum=fire"`
	Speed  []float64 `json:"speed,omitempty" jsonschema:"minItems=2,maxItems=2"`
}

// Intent is a decoded client intent.
type Intent struct {
	Action string
	Speed  state.Vec2
}

// DecodeName extracts the player name from the first frame of a session.
func DecodeName(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("%w: not valid utf-8", ErrInvalidName)
	}
	name := strings.TrimSpace(string(payload))
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	return name, nil
}

// DecodeIntent converts a raw frame into an intent. Unknown actions return
// the intent alongside ErrUnsupportedAction so callers can log the action.
func DecodeIntent(payload []byte) (Intent, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Intent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch msg.Action {
	case "":
		return Intent{}, fmt.Errorf("%w: missing action", ErrMalformed)
	case ActionMove:
		if len(msg.Speed) != 2 {
			return Intent{}, fmt.Errorf("%w: move requires a two element speed, got %d", ErrMalformed, len(msg.Speed))
		}
		return Intent{Action: ActionMove, Speed: state.V(msg.Speed[0], msg.Speed[1])}, nil
	case ActionFire:
		return Intent{Action: ActionFire}, nil
	default:
		return Intent{Action: msg.Action}, fmt.Errorf("%w: %q", ErrUnsupportedAction, msg.Action)
	}
}

// PlayerMessage carries the full observable state of one player.
type PlayerMessage struct {
	Type  string     `json:"type" jsonschema:"enum=player_new,enum=player_state"`
	Name  string     `json:"name"`
	Pos   [2]float64 `json:"pos"`
	Speed [2]float64 `json:"speed"`
	Hits  int        `json:"hits"`
}

// PartMessage announces that a player left.
type PartMessage struct {
	Type string `json:"type" jsonschema:"enum=player_part"`
	Name string `json:"name"`
}

func playerMessage(msgType string, status world.Status) PlayerMessage {
	return PlayerMessage{
		Type:  msgType,
		Name:  status.Name,
		Pos:   [2]float64(status.Pos),
		Speed: [2]float64(status.Speed),
		Hits:  status.Hits,
	}
}

// EncodePlayerNew renders the announcement of a player entering the world.
func EncodePlayerNew(status world.Status) ([]byte, error) {
	return json.Marshal(playerMessage(TypePlayerNew, status))
}

// EncodePlayerState renders a state update for a player.
func EncodePlayerState(status world.Status) ([]byte, error) {
	return json.Marshal(playerMessage(TypePlayerState, status))
}

// EncodePlayerPart renders the departure of a player.
func EncodePlayerPart(name string) ([]byte, error) {
	return json.Marshal(PartMessage{Type: TypePlayerPart, Name: name})
}
