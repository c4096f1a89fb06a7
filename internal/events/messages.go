package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op names the mutation an EntryEvent reports.
type Op string

const (
	OpCreated Op = "created"
	OpDeleted Op = "deleted"
	OpTimeSet Op = "time_set"
)

func (o Op) IsValid() bool {
	switch o {
	case OpCreated, OpDeleted, OpTimeSet:
		return true
	}
	return false
}

// EntryEvent is a lightweight notification that an entry changed.
// It carries only the ID; consumers fetch the current record from the store.
type EntryEvent struct {
	ID        string    `json:"id"`
	Op        Op        `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryEvent(id string, op Op) *EntryEvent {
	return &EntryEvent{
		ID:        id,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *EntryEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EntryEventFromJSON decodes and validates an event.
func EntryEventFromJSON(data []byte) (*EntryEvent, error) {
	var msg EntryEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("entry event without id")
	}
	if !msg.Op.IsValid() {
		return nil, fmt.Errorf("unknown entry event op %q", msg.Op)
	}
	return &msg, nil
}
