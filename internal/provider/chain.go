package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// named is satisfied by every provider adapter
type named interface {
	Name() string
}

// Attempt records one failed provider call within a chain
type Attempt struct {
	Provider string
	Err      error
}

// ChainError is returned when every provider of a capability failed
type ChainError struct {
	Capability string
	Attempts   []Attempt
}

func (e *ChainError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: no provider configured", e.Capability)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Provider, a.Err))
	}
	return fmt.Sprintf("%s failed on all providers (%s)", e.Capability, strings.Join(parts, "; "))
}

// Unwrap exposes every attempt's cause to errors.Is and errors.As
func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// tryInOrder calls each member until one succeeds. Members after the first
// are only reached when the previous one failed.
func tryInOrder[P named, T any](ctx context.Context, logger *zap.Logger, capability string, members []P, call func(context.Context, P) (T, error)) (T, error) {
	var zero T
	chainErr := &ChainError{Capability: capability}

	for i, member := range members {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				chainErr.Attempts = append(chainErr.Attempts, Attempt{Provider: member.Name(), Err: err})
				break
			}
			logger.Warn("Primary provider failed, attempting fallback",
				zap.String("capability", capability),
				zap.String("failed", members[i-1].Name()),
				zap.String("fallback", member.Name()))
		}

		result, err := call(ctx, member)
		if err == nil {
			return result, nil
		}

		logger.Warn("Provider call failed",
			zap.String("capability", capability),
			zap.String("provider", member.Name()),
			zap.Error(err))
		chainErr.Attempts = append(chainErr.Attempts, Attempt{Provider: member.Name(), Err: err})
	}

	return zero, chainErr
}

func names[P named](members []P) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Name()
	}
	return out
}
