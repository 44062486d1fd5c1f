package catalog

import "fmt"

// Step is one write of a multi-step catalog mutation.
// Undo reverses Do and may be nil when the write cannot be reversed.
type Step struct {
	Name string
	Do   func() error
	Undo func() error
}

// StepError reports which step of a saga failed and which ones had already
// been applied.
type StepError struct {
	Step      string
	Completed []string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Saga runs an ordered list of steps against stores that have no shared
// transaction. With compensate off, a failure leaves the completed steps
// applied. With compensate on, completed steps are undone in reverse order.
type Saga struct {
	name       string
	steps      []Step
	compensate bool
	logger     Logger
}

func newSaga(name string, compensate bool, logger Logger) *Saga {
	return &Saga{name: name, compensate: compensate, logger: logger}
}

// Add appends a step.
func (s *Saga) Add(name string, do func() error, undo func() error) {
	s.steps = append(s.steps, Step{Name: name, Do: do, Undo: undo})
}

// Run executes the steps in order and stops at the first failure.
func (s *Saga) Run() error {
	completed := make([]string, 0, len(s.steps))
	for i, step := range s.steps {
		if err := step.Do(); err != nil {
			s.logger.Error("saga step failed", "saga", s.name, "step", step.Name, "error", err)
			if s.compensate {
				s.rollback(s.steps[:i])
			}
			return &StepError{Step: step.Name, Completed: completed, Err: err}
		}
		completed = append(completed, step.Name)
	}
	return nil
}

// rollback undoes applied steps newest first. Undo failures are logged and
// do not stop the remaining undos.
func (s *Saga) rollback(applied []Step) {
	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		if step.Undo == nil {
			s.logger.Warn("saga step has no undo", "saga", s.name, "step", step.Name)
			continue
		}
		if err := step.Undo(); err != nil {
			s.logger.Error("saga undo failed", "saga", s.name, "step", step.Name, "error", err)
			continue
		}
		s.logger.Info("saga step undone", "saga", s.name, "step", step.Name)
	}
}
