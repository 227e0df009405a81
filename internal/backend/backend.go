// Package backend turns expanded occurrences into actions (console records,
// e-mails, tickets) and performs them as one batch.
package backend

import (
	"context"
	"errors"
	"fmt"

	appLog "wartungsplan/internal/log"
	"wartungsplan/internal/message"
	"wartungsplan/internal/model"
)

var (
	// ErrDependencyUnavailable is returned by a constructor when the binary
	// was built without the client the backend needs.
	ErrDependencyUnavailable = errors.New("backend: optional dependency unavailable")

	// ErrSessionFailed is returned by the ticket backend when no session to
	// the ticket system could be opened. No ticket was created.
	ErrSessionFailed = errors.New("backend: ticket session could not be opened")
)

// RunMode is fixed when a backend is constructed and only consulted in
// Perform.
type RunMode int

const (
	Live RunMode = iota
	// DryRun reports what would happen without any network access.
	DryRun
)

func (m RunMode) String() string {
	if m == DryRun {
		return "dry-run"
	}
	return "live"
}

// Backend builds one action of type A per occurrence and performs the whole
// batch at once. Prepare and ApplyHeaders must not have side effects.
type Backend[A any] interface {
	Prepare(h message.HeaderBlock, body string, occ model.Occurrence) (A, error)
	ApplyHeaders(h message.HeaderBlock, occ model.Occurrence, pre A) A
	Perform(ctx context.Context, actions []A) error
}

// Act splits every occurrence's description, builds its action and hands
// the batch, in occurrence order, to b.Perform. An empty occs still calls
// Perform with an empty batch.
func Act[A any](ctx context.Context, b Backend[A], occs []model.Occurrence) error {
	actions := make([]A, 0, len(occs))
	for _, occ := range occs {
		h, body := message.Split(occ.Description)
		appLog.Debug("split description", "summary", occ.Summary, "headers", h.Len())

		pre, err := b.Prepare(h, body, occ)
		if err != nil {
			return fmt.Errorf("prepare %q at %s: %w", occ.Summary, occ.Start.Format("2006-01-02 15:04"), err)
		}
		actions = append(actions, b.ApplyHeaders(h, occ, pre))
	}
	return b.Perform(ctx, actions)
}

// Runner is a Backend with its action type erased.
type Runner interface {
	Run(ctx context.Context, occs []model.Occurrence) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, occs []model.Occurrence) error

func (f RunnerFunc) Run(ctx context.Context, occs []model.Occurrence) error {
	return f(ctx, occs)
}

// Bind wraps b so that callers need not know its action type.
func Bind[A any](b Backend[A]) Runner {
	return RunnerFunc(func(ctx context.Context, occs []model.Occurrence) error {
		return Act(ctx, b, occs)
	})
}

// headerValue returns the event's value for name, else the configured
// default. ok is false when neither yields a value.
func headerValue(h message.HeaderBlock, name, def string) (string, bool) {
	if v, ok := h.Get(name); ok {
		return v, true
	}
	return def, def != ""
}
