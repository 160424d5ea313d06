package mooregex

import "testing"

func TestCountersZeroValueIsUnlimited(t *testing.T) {
	c := &counters{}
	for i := 0; i < 1000; i++ {
		if c.tick() {
			t.Fatalf("tick() reported exhausted with a zero Limits at iteration %d", i)
		}
	}
	for i := 0; i < 1000; i++ {
		if c.fail() {
			t.Fatalf("fail() reported exhausted with a zero Limits at iteration %d", i)
		}
	}
}

func TestCountersRespectMaxTicks(t *testing.T) {
	c := &counters{limits: Limits{MaxTicks: 3}}
	for i := 0; i < 3; i++ {
		if c.tick() {
			t.Fatalf("tick() exhausted early at iteration %d", i)
		}
	}
	if !c.tick() {
		t.Fatal("expected tick() to report exhausted once MaxTicks is exceeded")
	}
}

func TestCountersRespectMaxFailures(t *testing.T) {
	c := &counters{limits: Limits{MaxFailures: 2}}
	if c.fail() {
		t.Fatal("fail() exhausted too early")
	}
	if c.fail() {
		t.Fatal("fail() exhausted too early")
	}
	if !c.fail() {
		t.Fatal("expected fail() to report exhausted on the third call")
	}
}
