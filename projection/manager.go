package projection

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager runs a set of projection runners together and waits for all of
// them to wind down when the context is cancelled.
type Manager struct {
	runners []*Runner
}

func NewManager() *Manager {
	return &Manager{
		runners: make([]*Runner, 0),
	}
}

// AddRunners adds one or more runners to the Manager.
func (m *Manager) AddRunners(runners ...*Runner) {
	m.runners = append(m.runners, runners...)
}

func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, r := range m.runners {
		wg.Add(1)

		go func(r *Runner) {
			defer wg.Done()

			if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithField("projection", r.projection.Name()).Error("projection runner stopped: ", err)
			}
		}(r)
	}

	wg.Wait()
}
