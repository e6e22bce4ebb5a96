// Package protocol defines the signaling messages exchanged between the two
// peers of a call and their JSON wire format.
package protocol

import "fmt"

// Type identifies the kind of signaling message.
type Type string

const (
	TypeOffer     Type = "offer"
	TypeAnswer    Type = "answer"
	TypeCandidate Type = "candidate"
	TypeBye       Type = "bye"
)

// Candidate is a trickled ICE candidate.
type Candidate struct {
	SDPMLineIndex int
	SDPMid        string
	Candidate     string
}

// Message is one signaling message. Exactly the fields belonging to Type are
// meaningful: SDP for offers and answers, Candidate for candidates, nothing
// for bye.
type Message struct {
	Type      Type
	SDP       string
	Candidate *Candidate
}

func NewOffer(sdp string) Message  { return Message{Type: TypeOffer, SDP: sdp} }
func NewAnswer(sdp string) Message { return Message{Type: TypeAnswer, SDP: sdp} }
func NewBye() Message              { return Message{Type: TypeBye} }

func NewCandidate(c Candidate) Message {
	return Message{Type: TypeCandidate, Candidate: &c}
}

// String renders a short description for logs; SDP bodies are not included.
func (m Message) String() string {
	switch m.Type {
	case TypeOffer, TypeAnswer:
		return fmt.Sprintf("%s (%d bytes)", m.Type, len(m.SDP))
	case TypeCandidate:
		if m.Candidate == nil {
			return "candidate (empty)"
		}
		return fmt.Sprintf("candidate label=%d id=%q", m.Candidate.SDPMLineIndex, m.Candidate.SDPMid)
	default:
		return string(m.Type)
	}
}
