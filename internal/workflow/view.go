package workflow

import (
	"github.com/fpang/litter-report/internal/report"
	"github.com/fpang/litter-report/internal/steps"
)

// StepView is one entry of the progress indicator.
type StepView struct {
	ID        steps.ID `json:"id"`
	Label     string   `json:"label"`
	Satisfied bool     `json:"satisfied"`
	Reachable bool     `json:"reachable"`
}

// View is the derived workflow state. It is recomputed on every call and
// never stored.
type View struct {
	ActiveIndex int          `json:"activeIndex"`
	ActiveStep  steps.ID     `json:"activeStep"`
	Label       string       `json:"label"`
	CanAdvance  bool         `json:"canAdvance"`
	CanRetreat  bool         `json:"canRetreat"`
	IsTerminal  bool         `json:"isTerminal"`
	Progress    float64      `json:"progress"`
	Steps       []StepView   `json:"steps"`
	Draft       report.Draft `json:"draft"`
}

// State derives the view from the active index and the current draft.
func (c *Controller) State() View {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	return c.view(active, c.drafts.Current())
}

// Subscribe calls fn with a fresh view after every draft change.
func (c *Controller) Subscribe(fn func(View)) func() {
	return c.drafts.Subscribe(func(d report.Draft) {
		c.mu.Lock()
		active := c.active
		c.mu.Unlock()
		fn(c.view(active, d))
	})
}

func (c *Controller) view(active int, d report.Draft) View {
	n := c.registry.Count()
	def := c.registry.At(active)
	v := View{
		ActiveIndex: active,
		ActiveStep:  def.ID,
		Label:       def.Label,
		CanAdvance:  active < n-1 && def.IsSatisfied(d),
		CanRetreat:  active > 0,
		IsTerminal:  active == n-1,
		Steps:       make([]StepView, n),
		Draft:       d,
	}
	if n > 1 {
		v.Progress = float64(active) / float64(n-1)
	}
	for i, s := range c.registry.Steps() {
		v.Steps[i] = StepView{
			ID:        s.ID,
			Label:     s.Label,
			Satisfied: s.IsSatisfied(d),
			Reachable: i <= active,
		}
	}
	return v
}
