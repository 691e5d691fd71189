package network

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/wfunc/lobbyserver/models"
)

func TestEvent_WireShape(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	ev := NewEvent(TimerUpdate{SessionID: 3, SecondsRemaining: 17}, at)

	data, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Encoded event is not a JSON object: %v", err)
	}
	if flat["type"] != "timer_update" {
		t.Errorf("Expected type timer_update, got %v", flat["type"])
	}
	if flat["session_id"] != float64(3) || flat["seconds_remaining"] != float64(17) {
		t.Errorf("Expected flattened payload fields, got %v", flat)
	}
	if flat["timestamp"] != float64(at.UnixMilli()) {
		t.Errorf("Expected timestamp %d, got %v", at.UnixMilli(), flat["timestamp"])
	}
	if strings.Contains(string(data), "\n") {
		t.Error("Encoded record must stay on one line")
	}
}

func TestEvent_DecodeEveryType(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	events := []Event{
		NewEvent(SessionStarted{Session: &models.Session{ID: 1, StartedBy: 2, StartTime: at.UTC()}, Participants: []string{}, Duration: 20}, at),
		NewEvent(TimerUpdate{SessionID: 1, SecondsRemaining: 5}, at),
		NewEvent(UserJoined{SessionID: 1, UserID: 2, Participants: []string{"alice"}}, at),
		NewEvent(UserLeft{SessionID: 1, UserID: 2, Participants: []string{}}, at),
		NewEvent(NumberPicked{SessionID: 1, UserID: 2, PickedNumber: 4, Participants: []PickView{{Username: "alice", PickedNumber: models.IntPtr(4)}}}, at),
		NewEvent(SessionEnded{SessionID: 1, WinningNumber: 4, Winners: []string{"alice"}, Participants: []string{"alice"}}, at),
		NewEvent(PrepTimerUpdate{SecondsRemaining: 9}, at),
		NewEvent(PrepTimerDone{}, at),
	}

	for _, ev := range events {
		t.Run(string(ev.Type), func(t *testing.T) {
			data, err := Encode(ev)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(got, ev) {
				t.Errorf("Expected %#v, got %#v", ev, got)
			}
		})
	}
}

func TestDecode_UnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"nope"}`)); err == nil {
		t.Error("Expected an error for an unknown event type")
	}
}

func TestNewEvent_PanicsOnUnknownPayload(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected NewEvent to panic on an unknown payload")
		}
	}()
	NewEvent(struct{}{}, time.Now())
}
