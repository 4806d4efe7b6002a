package reactor

import (
	"testing"
	"time"
)

func TestTimerFires(t *testing.T) {
	r := New()
	fired := make(chan Time, 1)
	timer := r.RegisterTimer(func(now Time) Time {
		fired <- now
		return NEVER
	})
	defer timer.Stop()
	r.UpdateTimer(timer, r.Monotonic()+Time(0.01))
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerReschedule(t *testing.T) {
	r := New()
	var count int
	done := make(chan struct{})
	timer := r.RegisterTimer(func(now Time) Time {
		count++
		if count >= 3 {
			close(done)
			return NEVER
		}
		return now + Time(0.005)
	})
	defer timer.Stop()
	r.UpdateTimer(timer, NOW)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not reschedule enough times")
	}
}

func TestCompletion(t *testing.T) {
	r := New()
	c := NewCompletion()
	if c.Test() {
		t.Fatal("fresh completion should not be done")
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Complete()
	}()
	if !c.Wait(r, r.Monotonic()+Time(1)) {
		t.Fatal("expected completion before deadline")
	}
	if !c.Test() {
		t.Fatal("completion should report done after Complete")
	}
}

func TestCompletionTimeout(t *testing.T) {
	r := New()
	c := NewCompletion()
	if c.Wait(r, r.Monotonic()+Time(0.01)) {
		t.Fatal("expected timeout, not completion")
	}
}

func TestPause(t *testing.T) {
	r := New()
	start := r.Monotonic()
	r.Pause(start + Time(0.01))
	if r.Monotonic()-start < Time(0.005) {
		t.Fatal("pause returned too early")
	}
}
