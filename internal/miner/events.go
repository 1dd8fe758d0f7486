package miner

import "time"

// EventType identifies one kind of engine lifecycle event. The set is
// closed: consumers can switch over it exhaustively.
type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventJobReceived       EventType = "job_received"
	EventDifficultyChanged EventType = "difficulty_changed"
	EventRotationComplete  EventType = "rotation_complete"
	EventBlockFound        EventType = "block_found"
	EventShareAccepted     EventType = "share_accepted"
	EventShareRejected     EventType = "share_rejected"
	EventSubmissionError   EventType = "submission_error"
	EventStopped           EventType = "stopped"
)

// Event is one engine lifecycle notification. Only the fields relevant to
// the event type are populated.
type Event struct {
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	State        string    `json:"state,omitempty"`
	JobID        string    `json:"jobId,omitempty"`
	Difficulty   float64   `json:"difficulty,omitempty"`
	Rotation     uint64    `json:"rotation,omitempty"`
	Nonce        string    `json:"nonce,omitempty"`
	BlockHash    string    `json:"blockHash,omitempty"`
	LeadingZeros int       `json:"leadingZeros,omitempty"`
	Error        string    `json:"error,omitempty"`
	Stats        *Stats    `json:"stats,omitempty"`
}

// eventQueueSize bounds buffered undelivered events.
const eventQueueSize = 64

// emit delivers an event without ever blocking the mining loop: when the
// buffer is full the oldest undelivered event is dropped to make room.
func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()

	select {
	case e.events <- ev:
		return
	default:
	}

	select {
	case <-e.events:
	default:
	}

	select {
	case e.events <- ev:
	default:
	}
}
