// Package sim is a single-threaded discrete-event kernel. Processes are
// suspended by scheduling their continuation at a future simulated instant
// and are resumed one at a time in (wake time, registration order).
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/tidwall/btree"
)

var (
	ErrInvalidDelay   = errors.New("invalid delay")
	ErrInvalidHorizon = errors.New("invalid horizon")
)

// Process is a suspended unit of work. Resume runs it to its next suspension
// point; a process suspends again by scheduling itself on the clock.
type Process interface {
	ID() string
	Resume(clock *Clock) error
}

// ProcessFunc adapts a function into a Process.
type ProcessFunc struct {
	Name string
	Fn   func(clock *Clock) error
}

func (p ProcessFunc) ID() string                { return p.Name }
func (p ProcessFunc) Resume(clock *Clock) error { return p.Fn(clock) }

// event is a pending resumption. seq breaks ties between identical wake times
// so that equal timestamps resume in registration order.
type event struct {
	at      float64
	seq     uint64
	process Process
}

func eventLess(a, b *event) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	return a.seq < b.seq
}

type Clock struct {
	now       float64
	seq       uint64
	processed uint64
	events    *btree.BTreeG[*event]
	logger    zerolog.Logger
}

func NewClock(logger zerolog.Logger) *Clock {
	return &Clock{
		// Only ever touched by the goroutine driving Run.
		events: btree.NewBTreeGOptions(eventLess, btree.Options{NoLocks: true}),
		logger: logger,
	}
}

// Now is the authoritative simulated time.
func (c *Clock) Now() float64 { return c.now }

// Pending is the number of scheduled resumptions.
func (c *Clock) Pending() int { return c.events.Len() }

// Processed is the number of resumptions run so far.
func (c *Clock) Processed() uint64 { return c.processed }

// ScheduleAfter registers process to resume at Now()+delay.
func (c *Clock) ScheduleAfter(process Process, delay float64) error {
	if math.IsNaN(delay) || math.IsInf(delay, 0) || delay < 0 {
		return fmt.Errorf("%w: %v for process %s", ErrInvalidDelay, delay, process.ID())
	}
	c.seq++
	c.events.Set(&event{
		at:      c.now + delay,
		seq:     c.seq,
		process: process,
	})
	return nil
}

// Run resumes pending processes in time order until none is due at or
// before until. Processes still pending at the horizon are left suspended.
// The first process error aborts the run.
func (c *Clock) Run(ctx context.Context, until float64) error {
	if math.IsNaN(until) || until < c.now {
		return fmt.Errorf("%w: %v (now %v)", ErrInvalidHorizon, until, c.now)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next, ok := c.events.Min()
		if !ok || next.at > until {
			break
		}
		c.events.PopMin()

		c.now = next.at
		c.processed++
		if err := next.process.Resume(c); err != nil {
			c.logger.Error().
				Err(err).
				Str("process", next.process.ID()).
				Float64("time", c.now).
				Msg("process failed")
			return fmt.Errorf("process %s at %v: %w", next.process.ID(), c.now, err)
		}
	}

	c.logger.Debug().
		Float64("horizon", until).
		Uint64("processed", c.processed).
		Int("pending", c.events.Len()).
		Msg("horizon reached")
	return nil
}
