package signaling

import (
	"github.com/gammazero/deque"

	"github.com/1ureka/callroom/internal/protocol"
)

// MessageQueue buffers signaling messages that arrive before a Callee has
// created its media endpoint. It is FIFO except that the session pushes a
// pre-start Offer to the front, because early candidates cannot be applied
// before the offer.
//
// It is owned by a single Session and must only be used from the session's
// event loop.
type MessageQueue struct {
	messages *deque.Deque[protocol.Message]
}

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{messages: deque.New[protocol.Message]()}
}

func (q *MessageQueue) PushBack(msg protocol.Message)  { q.messages.PushBack(msg) }
func (q *MessageQueue) PushFront(msg protocol.Message) { q.messages.PushFront(msg) }

// PopFront removes and returns the oldest message. ok is false when the queue
// is empty.
func (q *MessageQueue) PopFront() (msg protocol.Message, ok bool) {
	if q.messages.Len() == 0 {
		return protocol.Message{}, false
	}
	return q.messages.PopFront(), true
}

func (q *MessageQueue) IsEmpty() bool { return q.messages.Len() == 0 }
func (q *MessageQueue) Len() int      { return q.messages.Len() }
func (q *MessageQueue) Clear()        { q.messages.Clear() }

// HasOffer reports whether an Offer is already buffered.
func (q *MessageQueue) HasOffer() bool {
	for i := 0; i < q.messages.Len(); i++ {
		if q.messages.At(i).Type == protocol.TypeOffer {
			return true
		}
	}
	return false
}

// Snapshot returns the buffered messages in pop order without removing them.
func (q *MessageQueue) Snapshot() []protocol.Message {
	out := make([]protocol.Message, q.messages.Len())
	for i := range out {
		out[i] = q.messages.At(i)
	}
	return out
}
