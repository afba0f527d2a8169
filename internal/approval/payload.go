package approval

import (
	"encoding/json"
	"fmt"
)

// PayloadVersion is the current wire version of button payloads. Cards posted
// by an older build keep working as long as the version matches; a version
// bump invalidates stale cards explicitly instead of misparsing them.
const PayloadVersion = 1

// Action identifies which button was pressed.
type Action string

const (
	ActionRequestApproval Action = "request_approval"
	ActionApprove         Action = "approve"
	ActionDecline         Action = "decline"
	ActionMoreInfo        Action = "more_info"
)

var knownActions = map[Action]bool{
	ActionRequestApproval: true,
	ActionApprove:         true,
	ActionDecline:         true,
	ActionMoreInfo:        true,
}

// Payload is the self-contained context round-tripped through a Block Kit
// button value. It carries everything a decision handler needs, so the flow
// survives process restarts with an empty registry.
type Payload struct {
	Version   int    `json:"v"`
	Action    Action `json:"action"`
	Channel   string `json:"channel"`
	Thread    string `json:"thread"`
	Item      string `json:"item"`
	Requester string `json:"requester"`
	RequestID string `json:"request_id"`
}

// WithAction returns a copy of the payload carrying a different action,
// used when one card fans out into several buttons.
func (p Payload) WithAction(action Action) Payload {
	p.Action = action
	return p
}

// Encode serializes the payload for a button value. Payload contains only
// strings and an int, so marshalling cannot fail.
func (p Payload) Encode() string {
	data, _ := json.Marshal(p)
	return string(data)
}

// DecodePayload parses and validates a button value.
func DecodePayload(value string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(value), &p); err != nil {
		return Payload{}, fmt.Errorf("malformed action payload: %w", err)
	}
	if p.Version != PayloadVersion {
		return Payload{}, fmt.Errorf("unsupported payload version %d", p.Version)
	}
	if !knownActions[p.Action] {
		return Payload{}, fmt.Errorf("unknown action %q", p.Action)
	}
	if p.Channel == "" || p.Thread == "" {
		return Payload{}, fmt.Errorf("action payload missing origin channel or thread")
	}
	return p, nil
}
