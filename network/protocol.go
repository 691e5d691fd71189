package network

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wfunc/lobbyserver/models"
)

// EventType tags every record on the observer stream.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventTimerUpdate     EventType = "timer_update"
	EventUserJoined      EventType = "user_joined"
	EventUserLeft        EventType = "user_left"
	EventNumberPicked    EventType = "number_picked"
	EventSessionEnded    EventType = "session_ended"
	EventPrepTimerUpdate EventType = "prep_timer_update"
	EventPrepTimerDone   EventType = "prep_timer_done"
)

// Event is one immutable state-transition notification. On the wire the
// payload fields are flattened next to "type" and "timestamp".
type Event struct {
	Type      EventType
	Timestamp int64 // unix milliseconds
	Payload   any
}

type SessionStarted struct {
	Session      *models.Session `json:"session"`
	Participants []string        `json:"participants"`
	Duration     int             `json:"duration"`
}

type TimerUpdate struct {
	SessionID        int64 `json:"session_id"`
	SecondsRemaining int   `json:"seconds_remaining"`
}

type UserJoined struct {
	SessionID    int64    `json:"session_id"`
	UserID       int64    `json:"user_id"`
	Participants []string `json:"participants"`
}

type UserLeft struct {
	SessionID    int64    `json:"session_id"`
	UserID       int64    `json:"user_id"`
	Participants []string `json:"participants"`
}

// PickView is a participant with their current pick, as sent in number_picked.
type PickView struct {
	Username     string `json:"username"`
	PickedNumber *int   `json:"picked_number"`
}

type NumberPicked struct {
	SessionID    int64      `json:"session_id"`
	UserID       int64      `json:"user_id"`
	PickedNumber int        `json:"picked_number"`
	Participants []PickView `json:"participants"`
}

type SessionEnded struct {
	SessionID     int64    `json:"session_id"`
	WinningNumber int      `json:"winning_number"`
	Winners       []string `json:"winners"`
	Participants  []string `json:"participants"`
}

type PrepTimerUpdate struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

type PrepTimerDone struct{}

func payloadType(p any) (EventType, error) {
	switch p.(type) {
	case SessionStarted:
		return EventSessionStarted, nil
	case TimerUpdate:
		return EventTimerUpdate, nil
	case UserJoined:
		return EventUserJoined, nil
	case UserLeft:
		return EventUserLeft, nil
	case NumberPicked:
		return EventNumberPicked, nil
	case SessionEnded:
		return EventSessionEnded, nil
	case PrepTimerUpdate:
		return EventPrepTimerUpdate, nil
	case PrepTimerDone:
		return EventPrepTimerDone, nil
	}
	return "", fmt.Errorf("unknown event payload %T", p)
}

// NewEvent stamps payload with its type and the given time. It panics on a
// payload that is not one of the event structs above.
func NewEvent(payload any, at time.Time) Event {
	typ, err := payloadType(payload)
	if err != nil {
		panic(err)
	}
	return Event{Type: typ, Timestamp: at.UnixMilli(), Payload: payload}
}

func (e Event) MarshalJSON() ([]byte, error) {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if fields["type"], err = json.Marshal(e.Type); err != nil {
		return nil, err
	}
	if fields["timestamp"], err = json.Marshal(e.Timestamp); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type      EventType `json:"type"`
		Timestamp int64     `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	var payload any
	switch head.Type {
	case EventSessionStarted:
		payload = &SessionStarted{}
	case EventTimerUpdate:
		payload = &TimerUpdate{}
	case EventUserJoined:
		payload = &UserJoined{}
	case EventUserLeft:
		payload = &UserLeft{}
	case EventNumberPicked:
		payload = &NumberPicked{}
	case EventSessionEnded:
		payload = &SessionEnded{}
	case EventPrepTimerUpdate:
		payload = &PrepTimerUpdate{}
	case EventPrepTimerDone:
		payload = &PrepTimerDone{}
	default:
		return fmt.Errorf("unknown event type %q", head.Type)
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}

	e.Type = head.Type
	e.Timestamp = head.Timestamp
	// Store payloads by value so decoded events compare like published ones.
	switch p := payload.(type) {
	case *SessionStarted:
		e.Payload = *p
	case *TimerUpdate:
		e.Payload = *p
	case *UserJoined:
		e.Payload = *p
	case *UserLeft:
		e.Payload = *p
	case *NumberPicked:
		e.Payload = *p
	case *SessionEnded:
		e.Payload = *p
	case *PrepTimerUpdate:
		e.Payload = *p
	case *PrepTimerDone:
		e.Payload = *p
	}
	return nil
}

// Encode renders one self-delimited record for text transports.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a record produced by Encode.
func Decode(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
