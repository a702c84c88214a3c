package window

import "testing"

func TestWindow(t *testing.T) {
	w, err := New(3)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := w.Transitions(); !IsIncomplete(err) {
		t.Errorf("transitions: want incomplete error have(%v)", err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Add(Transition{Action: i, Carry: i > 0}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Add(Transition{}); !IsFull(err) {
		t.Errorf("add: want full error have(%v)", err)
	}

	transitions, err := w.Transitions()
	if err != nil {
		t.Fatal(err)
	}
	for i, tr := range transitions {
		if tr.Action != i {
			t.Errorf("transition %v: want action(%v) have(%v)", i, i,
				tr.Action)
		}
	}

	w.Clear()
	if !w.Empty() || w.Full() || w.Capacity() != 3 {
		t.Errorf("clear: len(%v) capacity(%v)", w.Len(), w.Capacity())
	}
	if err := w.Add(Transition{}); err != nil {
		t.Errorf("add after clear: %v", err)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("new: expected error for zero capacity")
	}
}
