package emit

import "testing"

func TestMultiEmitter(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	multi := NewMultiEmitter(a, nil, b, NewNullEmitter())

	if len(multi) != 3 {
		t.Fatalf("expected nil emitters to be dropped, got %d entries", len(multi))
	}

	multi.Emit(Event{ProcessInstanceID: "pi", Msg: MsgProcessStart})

	if len(a.GetHistory("pi")) != 1 || len(b.GetHistory("pi")) != 1 {
		t.Error("event was not fanned out to every emitter")
	}
}

func TestNullEmitter(t *testing.T) {
	var e Emitter = NewNullEmitter()
	e.Emit(Event{Msg: "ignored"})
}
