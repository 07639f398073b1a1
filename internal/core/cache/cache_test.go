package cache

import (
	"testing"
	"time"
)

func TestCache_FirstWithin(t *testing.T) {
	c := New()
	if !c.FirstWithin("conn:1:type:99", time.Minute) {
		t.Fatal("expected first occurrence to be reported")
	}
	if c.FirstWithin("conn:1:type:99", time.Minute) {
		t.Error("expected repeat occurrence within ttl to be suppressed")
	}
	if !c.FirstWithin("conn:2:type:99", time.Minute) {
		t.Error("expected a different key to be reported")
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestCache_FirstWithinExpires(t *testing.T) {
	c := New()
	c.FirstWithin("ephemeral", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if !c.FirstWithin("ephemeral", 10*time.Millisecond) {
		t.Error("expected key to be reported again once its window passed")
	}
}
