package fsm

import (
	"context"
	"errors"
	"testing"
)

func TestMachineTransitionsAndRejectsUndefinedEvents(t *testing.T) {
	m := NewMachine(State("idle"))
	m.AddTransition(State("idle"), Event("start"), Transition{TargetState: State("running")})
	m.AddTransition(State("running"), Event("stop"), Transition{TargetState: State("idle")})

	ctx := context.Background()
	if !m.CanTransition(ctx, Event("start")) {
		t.Fatalf("expected start to be a legal transition from idle")
	}
	if err := m.Transition(ctx, Event("start")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.CurrentState() != State("running") {
		t.Fatalf("CurrentState() = %v, want running", m.CurrentState())
	}

	if err := m.Transition(ctx, Event("start")); err == nil {
		t.Fatalf("expected an error re-issuing start from running")
	}
}

func TestMachineTransitionRunsActionAndPropagatesItsError(t *testing.T) {
	m := NewMachine(State("idle"))
	boom := errors.New("side effect failed")
	m.AddTransition(State("idle"), Event("start"), Transition{
		TargetState: State("running"),
		Action:      func(context.Context) error { return boom },
	})

	if err := m.Transition(context.Background(), Event("start")); !errors.Is(err, boom) {
		t.Fatalf("got %v, want the action's error propagated", err)
	}
	if m.CurrentState() != State("idle") {
		t.Fatalf("a failed action must not advance the state, got %v", m.CurrentState())
	}
}

func TestTableApplyAndIsValid(t *testing.T) {
	table := NewTable([]Rule{
		{From: State("a"), Event: Event("go"), To: State("b")},
		{From: State("b"), Event: Event("go"), To: State("c")},
	})

	next, err := table.Apply(context.Background(), State("a"), Event("go"))
	if err != nil || next != State("b") {
		t.Fatalf("got next=%v err=%v, want b", next, err)
	}
	if table.IsValid(State("c"), Event("go")) {
		t.Fatalf("expected no rule defined from the terminal state c")
	}
}

func TestTableApplyRunsCondition(t *testing.T) {
	denied := errors.New("condition not met")
	table := NewTable([]Rule{
		{From: State("a"), Event: Event("go"), To: State("b"), Condition: func(context.Context) error { return denied }},
	})
	if _, err := table.Apply(context.Background(), State("a"), Event("go")); !errors.Is(err, denied) {
		t.Fatalf("got %v, want the condition's error surfaced", err)
	}
}

func TestTableValidEvents(t *testing.T) {
	table := NewTable([]Rule{
		{From: State("a"), Event: Event("go"), To: State("b")},
		{From: State("a"), Event: Event("cancel"), To: State("a")},
	})
	events := table.ValidEvents(State("a"))
	if len(events) != 2 {
		t.Fatalf("got %v, want 2 valid events from state a", events)
	}
}

func TestConvertStateAndEvent(t *testing.T) {
	type domainState string
	type domainEvent string
	if ConvertState(domainState("Ready")) != State("Ready") {
		t.Fatalf("ConvertState did not widen the underlying string")
	}
	if ConvertEvent(domainEvent("Go")) != Event("Go") {
		t.Fatalf("ConvertEvent did not widen the underlying string")
	}
}
