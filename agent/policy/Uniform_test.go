package policy

import (
	"testing"

	ts "github.com/samuelfneumann/predictivenet/timestep"
)

func TestUniform(t *testing.T) {
	p, err := NewUniform(1, 6, 42)
	if err != nil {
		t.Fatal(err)
	}

	counts := make(map[int]int)
	for i := 0; i < 6000; i++ {
		action := p.SelectAction(ts.TimeStep{})
		if action < 1 || action > 6 {
			t.Fatalf("selectAction: want([1, 6]) have(%v)", action)
		}
		counts[action]++
	}
	for action := 1; action <= 6; action++ {
		if counts[action] < 800 {
			t.Errorf("selectAction: action %v selected only %v times",
				action, counts[action])
		}
	}
}

func TestUniformSeeded(t *testing.T) {
	a, _ := NewUniform(0, 17, 7)
	b, _ := NewUniform(0, 17, 7)
	for i := 0; i < 100; i++ {
		if x, y := a.SelectAction(ts.TimeStep{}), b.SelectAction(ts.TimeStep{}); x != y {
			t.Fatalf("step %v: equal seeds gave different actions %v, %v",
				i, x, y)
		}
	}
}

func TestUniformInvalid(t *testing.T) {
	if _, err := NewUniform(3, 2, 0); err == nil {
		t.Error("newUniform: expected error for empty range")
	}
	if _, err := NewUniform(-1, 2, 0); err == nil {
		t.Error("newUniform: expected error for negative action")
	}
}
