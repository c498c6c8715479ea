// Package sagas runs multi-step writes that cannot be made atomic, undoing
// completed steps when a later one fails.
package sagas

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step is one unit of a saga. Compensate undoes Execute and may be nil for
// steps that change nothing or cannot be undone.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// State is the lifecycle state of a saga
type State string

const (
	StatePending      State = "PENDING"
	StateRunning      State = "RUNNING"
	StateCompleted    State = "COMPLETED"
	StateCompensating State = "COMPENSATING"
	StateCompensated  State = "COMPENSATED"
	StateFailed       State = "FAILED"
)

// Saga executes its steps in order. When a step fails, the compensations of
// the steps that completed run in reverse order. A saga runs once.
type Saga struct {
	id     string
	name   string
	steps  []Step
	state  State
	logger *zap.Logger
}

// New creates a saga
func New(name string, logger *zap.Logger) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga{
		id:     "saga-" + uuid.NewString(),
		name:   name,
		state:  StatePending,
		logger: logger,
	}
}

// AddStep appends a step
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the saga. The returned error wraps the failing step's error;
// compensation failures are joined to it.
func (s *Saga) Execute(ctx context.Context) error {
	if s.state != StatePending {
		return fmt.Errorf("saga %s already ran", s.name)
	}
	s.state = StateRunning
	s.logger.Debug("Starting saga",
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
		zap.Int("total_steps", len(s.steps)),
	)

	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			s.logger.Warn("Saga step failed",
				zap.String("saga_id", s.id),
				zap.String("step_name", step.Name),
				zap.Error(err),
			)
			stepErr := fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
			if compErr := s.compensate(ctx, i); compErr != nil {
				s.state = StateFailed
				return errors.Join(stepErr, compErr)
			}
			s.state = StateCompensated
			return stepErr
		}
	}

	s.state = StateCompleted
	s.logger.Debug("Saga completed",
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
	)
	return nil
}

// compensate undoes the first n steps, last first. Every compensation runs
// even if an earlier one fails.
func (s *Saga) compensate(ctx context.Context, n int) error {
	s.state = StateCompensating
	var errs []error
	for i := n - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("saga_id", s.id),
				zap.String("step_name", step.Name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}

// State returns the current state
func (s *Saga) State() State {
	return s.state
}

// ID returns the saga id used in logs
func (s *Saga) ID() string {
	return s.id
}
