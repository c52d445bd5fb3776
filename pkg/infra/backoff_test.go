package infra

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestBackoffGrowsWithinBounds(t *testing.T) {
	c := qt.New(t)
	b := NewBackoff(time.Second, 8*time.Second, 2.0)

	for i := 0; i < 10; i++ {
		wait := b.Next()
		c.Assert(wait >= time.Second, qt.IsTrue, qt.Commentf("attempt %d: %v", i, wait))
		// +20% jitter on the ceiling.
		c.Assert(wait <= 8*time.Second*12/10, qt.IsTrue, qt.Commentf("attempt %d: %v", i, wait))
	}
	c.Assert(b.Attempts(), qt.Equals, 10)

	b.Reset()
	c.Assert(b.Attempts(), qt.Equals, 0)
	c.Assert(b.Next() <= time.Second*12/10, qt.IsTrue)
}

func TestConstantBackoffHasNoJitter(t *testing.T) {
	c := qt.New(t)
	b := NewConstantBackoff(5 * time.Second)

	for i := 0; i < 5; i++ {
		c.Assert(b.Next(), qt.Equals, 5*time.Second)
	}
	c.Assert(b.Attempts(), qt.Equals, 5)
}

func TestBackoffWaitStopsOnCancel(t *testing.T) {
	c := qt.New(t)
	b := NewConstantBackoff(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(b.Wait(ctx), qt.IsFalse)

	short := NewConstantBackoff(time.Millisecond)
	c.Assert(short.Wait(context.Background()), qt.IsTrue)
}
