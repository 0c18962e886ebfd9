// Package workflow drives the citizen through the ordered report steps.
//
// The controller never blocks on I/O. Every gate is evaluated against the
// draft as it is at call time, since classification and geolocation results
// land asynchronously.
package workflow

import (
	"context"
	"sync"

	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/report"
	"github.com/fpang/litter-report/internal/steps"
	"github.com/rs/zerolog/log"
)

// Drafts is the draft state the controller reads and clears.
type Drafts interface {
	Current() report.Draft
	Clear(ctx context.Context) error
	Subscribe(fn draft.Listener) func()
}

// Controller tracks the active step index.
type Controller struct {
	registry *steps.Registry
	drafts   Drafts

	mu     sync.Mutex
	active int
	hooks  map[steps.ID][]func()
}

// New creates a controller positioned on the first step.
func New(registry *steps.Registry, drafts Drafts) *Controller {
	return &Controller{
		registry: registry,
		drafts:   drafts,
		hooks:    make(map[steps.ID][]func()),
	}
}

// OnLeave registers fn to run whenever the controller moves off step id,
// in any direction. Hooks release step-scoped resources such as the camera.
func (c *Controller) OnLeave(id steps.ID, fn func()) {
	c.mu.Lock()
	c.hooks[id] = append(c.hooks[id], fn)
	c.mu.Unlock()
}

func (c *Controller) last() int {
	return c.registry.Count() - 1
}

// Advance moves forward one step if the active step's gate is satisfied now.
func (c *Controller) Advance() bool {
	c.mu.Lock()
	if c.active == c.last() {
		c.mu.Unlock()
		return false
	}
	def := c.registry.At(c.active)
	if !def.IsSatisfied(c.drafts.Current()) {
		c.mu.Unlock()
		log.Debug().Str("step", string(def.ID)).Msg("Advance refused, step not satisfied")
		return false
	}
	c.active++
	hooks := c.hooksFor(def.ID)
	next := c.registry.At(c.active).ID
	c.mu.Unlock()

	log.Debug().Str("from", string(def.ID)).Str("to", string(next)).Msg("Advanced")
	runHooks(hooks)
	return true
}

// Retreat moves back one step without validation.
func (c *Controller) Retreat() bool {
	c.mu.Lock()
	if c.active == 0 {
		c.mu.Unlock()
		return false
	}
	leaving := c.registry.At(c.active).ID
	c.active--
	hooks := c.hooksFor(leaving)
	c.mu.Unlock()

	log.Debug().Str("from", string(leaving)).Msg("Retreated")
	runHooks(hooks)
	return true
}

// JumpTo moves to index i when i is the active step or an earlier one.
// Forward jumps are refused so gates cannot be skipped.
func (c *Controller) JumpTo(i int) bool {
	c.mu.Lock()
	if i < 0 || i > c.active {
		c.mu.Unlock()
		return false
	}
	if i == c.active {
		c.mu.Unlock()
		return true
	}
	leaving := c.registry.At(c.active).ID
	c.active = i
	hooks := c.hooksFor(leaving)
	c.mu.Unlock()

	log.Debug().Str("from", string(leaving)).Int("to", i).Msg("Jumped back")
	runHooks(hooks)
	return true
}

// Restart returns to the first step and clears the draft.
func (c *Controller) Restart(ctx context.Context) error {
	c.mu.Lock()
	var hooks []func()
	if c.active != 0 {
		hooks = c.hooksFor(c.registry.At(c.active).ID)
	}
	c.active = 0
	c.mu.Unlock()

	runHooks(hooks)
	log.Info().Msg("Workflow restarted")
	return c.drafts.Clear(ctx)
}

// Resume positions the controller for a draft restored from persistence:
// an empty draft starts at the first step, a submitted one at the last, and
// anything else at the first unsatisfied step before the terminal one.
func (c *Controller) Resume() {
	d := c.drafts.Current()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case d.Status == report.StatusSubmitted:
		c.active = c.last()
	case d.IsEmpty():
		c.active = 0
	default:
		limit := c.last() - 1
		if limit < 0 {
			limit = 0
		}
		i := 0
		for i < limit && c.registry.At(i).IsSatisfied(d) {
			i++
		}
		c.active = i
	}
	log.Debug().Str("step", string(c.registry.At(c.active).ID)).Msg("Workflow resumed")
}

// ActiveIndex returns the active step index.
func (c *Controller) ActiveIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ActiveStep returns the active step ID.
func (c *Controller) ActiveStep() steps.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.At(c.active).ID
}

// hooksFor copies the hooks for id. Callers hold c.mu.
func (c *Controller) hooksFor(id steps.ID) []func() {
	hs := c.hooks[id]
	if len(hs) == 0 {
		return nil
	}
	out := make([]func(), len(hs))
	copy(out, hs)
	return out
}

func runHooks(hooks []func()) {
	for _, h := range hooks {
		h()
	}
}
