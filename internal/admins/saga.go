package admins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// sagaStep is one forward action with its compensation.
type sagaStep struct {
	name string
	run  func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga runs steps in order and unwinds completed steps in reverse when a
// later step fails.
type saga struct {
	logger *slog.Logger
	done   []sagaStep
}

func newSaga(logger *slog.Logger) *saga {
	return &saga{logger: logger}
}

func (s *saga) run(ctx context.Context, st sagaStep) error {
	if err := st.run(ctx); err != nil {
		return s.rollback(ctx, st.name, err)
	}
	s.done = append(s.done, st)
	return nil
}

// rollback compensates completed steps. Compensations run even when ctx was
// cancelled. Failed compensations are logged and joined onto cause.
func (s *saga) rollback(ctx context.Context, failed string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var rbErrs []error
	for i := len(s.done) - 1; i >= 0; i-- {
		st := s.done[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			s.logger.Error("invite compensation failed, manual cleanup required",
				slog.String("failed_step", failed),
				slog.String("compensation", st.name),
				slog.Any("cause", cause),
				slog.Any("error", err),
			)
			rbErrs = append(rbErrs, fmt.Errorf("undo %s: %w", st.name, err))
		}
	}
	s.done = nil
	if len(rbErrs) == 0 {
		return cause
	}
	return errors.Join(cause, fmt.Errorf("%w: %w", ErrRollbackFailed, errors.Join(rbErrs...)))
}
