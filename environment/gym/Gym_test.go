package gym_test

import (
	"os"
	"testing"

	"github.com/samuelfneumann/predictivenet/environment/gym"
)

// TestAtari needs a Python installation with gym's Atari extras, so
// it only runs when GYM_ATARI is set.
func TestAtari(t *testing.T) {
	if os.Getenv("GYM_ATARI") == "" {
		t.Skip("GYM_ATARI not set")
	}
	defer gym.Shutdown()

	env, step, err := gym.New("Breakout-v0", nil, 0.99, 123)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	if step.Observation.Len() != gym.Height*gym.Width*gym.Channels {
		t.Fatalf("observation length: have(%v)", step.Observation.Len())
	}

	for i := 0; i < 15; i++ {
		next, done, err := env.Step(i % 4)
		if err != nil {
			t.Fatal(err)
		}
		for j := 0; j < next.Observation.Len(); j++ {
			if v := next.Observation.AtVec(j); v < 0 || v > 1 {
				t.Fatalf("observation %v out of [0, 1]: %v", j, v)
			}
		}
		if done {
			if _, err := env.Reset(); err != nil {
				t.Fatal(err)
			}
		}
	}

	// Breakout only uses the minimal Atari action set
	want := []string{"NOOP", "FIRE", "RIGHT", "LEFT"}
	have := env.ActionMeanings()
	if len(have) != len(want) {
		t.Fatalf("action meanings: want(%v) have(%v)", want, have)
	}
	for i := range want {
		if have[i] != want[i] {
			t.Errorf("action meaning %v: want(%v) have(%v)", i, want[i],
				have[i])
		}
	}

	if h, w := env.FrameSize(); h != gym.Height || w != gym.Width {
		t.Errorf("frameSize: have(%v, %v)", h, w)
	}
}
