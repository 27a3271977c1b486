package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/SimplyPrint/lpa-bridge/internal/logging"
)

// PanicError wraps a panic recovered inside the exclusive section.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprint(e.Value) }

// Serializer funnels operations through a single execution slot. Callers
// block until the slot is free; the operation then runs to completion on
// the caller's goroutine, which makes blocking calls into the card backend
// safe without any re-entrancy.
type Serializer struct {
	sem     *semaphore.Weighted
	metrics *Metrics
}

// NewSerializer returns a Serializer. m may be nil.
func NewSerializer(m *Metrics) *Serializer {
	return &Serializer{sem: semaphore.NewWeighted(1), metrics: m}
}

// Run executes op exclusively. ctx only bounds the wait for the slot: once
// op starts it receives a context that is never cancelled, so it runs to
// completion. A panic in op is recovered and returned as *PanicError after
// the slot is released.
func Run[T any](ctx context.Context, s *Serializer, op func(context.Context) (T, error)) (result T, err error) {
	start := time.Now()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return result, err
	}
	s.metrics.RecordLockWait(time.Since(start))
	defer s.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logging.CapturePanic(r, stack, "exclusive operation")
			logging.Error(logging.CatBridge, fmt.Sprintf("PANIC in operation: %v", r), map[string]any{
				"stack": string(stack),
			})
			err = &PanicError{Value: r}
		}
	}()

	return op(context.WithoutCancel(ctx))
}
