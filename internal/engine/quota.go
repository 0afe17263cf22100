package engine

import (
	"errors"
	"fmt"
)

// ErrStepQuota is the cause of every QUOTA_EXCEEDED failure.
var ErrStepQuota = errors.New("step quota exceeded")

// stepBudget counts the frames one flow has created. The root frame spends
// the first step; each relayed call spends one more before it crosses the
// boundary.
//
// The budget catches call chains that never revisit an actor (a -> b -> c
// ...) and self-recursion, neither of which re-entrancy tracking refuses.
type stepBudget struct {
	used  int
	limit int
}

func newStepBudget(limit int) *stepBudget {
	return &stepBudget{used: 1, limit: limit}
}

// take spends a step. A refused step is not spent.
func (b *stepBudget) take(flowToken string) error {
	if b.used >= b.limit {
		return fmt.Errorf("%w: flow %s would create frame %d, limit is %d",
			ErrStepQuota, flowToken, b.used+1, b.limit)
	}
	b.used++
	return nil
}
