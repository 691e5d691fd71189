package state

import (
	"testing"
)

func TestMachine_InitialState(t *testing.T) {
	sm := NewLobbyMachine()
	if sm.GetCurrentState() != Idle {
		t.Errorf("Expected initial state idle, got %s", sm.GetCurrentState())
	}
}

func TestMachine_LobbyCycle(t *testing.T) {
	sm := NewLobbyMachine()

	for _, to := range []Phase{Open, Resolving, Cooldown, Idle} {
		if err := sm.ChangeState(to); err != nil {
			t.Fatalf("Expected transition to %s to be allowed, got %v", to, err)
		}
		if sm.GetCurrentState() != to {
			t.Fatalf("Expected current state %s, got %s", to, sm.GetCurrentState())
		}
	}
}

func TestMachine_RejectsUnregistered(t *testing.T) {
	tests := []struct {
		name string
		path []Phase
		to   Phase
	}{
		{name: "IdleToCooldown", to: Cooldown},
		{name: "IdleToResolving", to: Resolving},
		{name: "OpenToOpen", path: []Phase{Open}, to: Open},
		{name: "CooldownToOpen", path: []Phase{Open, Resolving, Cooldown}, to: Open},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewLobbyMachine()
			for _, p := range tt.path {
				if err := sm.ChangeState(p); err != nil {
					t.Fatalf("setup transition to %s failed: %v", p, err)
				}
			}
			before := sm.GetCurrentState()
			if sm.CanChange(tt.to) {
				t.Errorf("CanChange(%s) should be false from %s", tt.to, before)
			}
			if err := sm.ChangeState(tt.to); err != ErrTransitionNotAllowed {
				t.Errorf("Expected ErrTransitionNotAllowed, got %v", err)
			}
			if sm.GetCurrentState() != before {
				t.Errorf("Expected state to remain %s after a blocked transition, got %s", before, sm.GetCurrentState())
			}
		})
	}
}

func TestMachine_ConditionAndHooks(t *testing.T) {
	sm := NewMachine("A")
	allow := false
	sm.AddTransition("A", "B", func() bool { return allow })

	var enteredFrom Phase
	sm.OnEnter("B", func(from Phase) { enteredFrom = from })

	if err := sm.ChangeState("B"); err != ErrTransitionNotAllowed {
		t.Fatalf("Expected blocked transition while condition is false, got %v", err)
	}
	if enteredFrom != "" {
		t.Error("OnEnter should not run for a blocked transition")
	}

	allow = true
	if err := sm.ChangeState("B"); err != nil {
		t.Fatalf("Expected transition once condition holds, got %v", err)
	}
	if enteredFrom != "A" {
		t.Errorf("Expected OnEnter to see from=A, got %q", enteredFrom)
	}
}

func TestPhase_Ordinal(t *testing.T) {
	want := map[Phase]int{Idle: 0, Open: 1, Resolving: 2, Cooldown: 3}
	for p, n := range want {
		if p.Ordinal() != n {
			t.Errorf("Expected %s ordinal %d, got %d", p, n, p.Ordinal())
		}
	}
}
