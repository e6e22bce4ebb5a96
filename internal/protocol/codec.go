package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every Decode failure.
var ErrMalformed = errors.New("malformed signaling message")

// wireMessage is the JSON object carried by the relay channel:
//
//	{ "type": "offer" | "answer", "sdp": "..." }
//	{ "type": "candidate", "label": 0, "id": "audio", "candidate": "..." }
//	{ "type": "bye" }
type wireMessage struct {
	Type      Type   `json:"type"`
	SDP       string `json:"sdp,omitempty"`
	Label     *int   `json:"label,omitempty"`
	ID        string `json:"id,omitempty"`
	Candidate string `json:"candidate,omitempty"`
}

// Encode serializes a Message into its wire JSON form.
func Encode(msg Message) ([]byte, error) {
	w := wireMessage{Type: msg.Type}

	switch msg.Type {
	case TypeOffer, TypeAnswer:
		w.SDP = msg.SDP
	case TypeCandidate:
		if msg.Candidate == nil {
			return nil, fmt.Errorf("encode candidate: missing candidate")
		}
		label := msg.Candidate.SDPMLineIndex
		w.Label = &label
		w.ID = msg.Candidate.SDPMid
		w.Candidate = msg.Candidate.Candidate
	case TypeBye:
	default:
		return nil, fmt.Errorf("encode: unsupported message type %q", msg.Type)
	}

	return json.Marshal(w)
}

// Decode parses one wire JSON object into a Message.
func Decode(data []byte) (Message, error) {
	var w wireMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch w.Type {
	case TypeOffer, TypeAnswer:
		if w.SDP == "" {
			return Message{}, fmt.Errorf("%w: %s without sdp", ErrMalformed, w.Type)
		}
		return Message{Type: w.Type, SDP: w.SDP}, nil

	case TypeCandidate:
		if w.Candidate == "" {
			return Message{}, fmt.Errorf("%w: candidate without candidate line", ErrMalformed)
		}
		c := Candidate{SDPMid: w.ID, Candidate: w.Candidate}
		if w.Label != nil {
			c.SDPMLineIndex = *w.Label
		}
		return NewCandidate(c), nil

	case TypeBye:
		return NewBye(), nil

	default:
		return Message{}, fmt.Errorf("%w: unsupported type %q", ErrMalformed, w.Type)
	}
}
