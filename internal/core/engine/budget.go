package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracklens/tracklens/internal/core"
)

// ErrBudgetInfeasible reports a model whose context window cannot hold even
// the fixed prompt and tooling overhead. This is fatal for the provider/model
// pairing and is surfaced immediately instead of attempting a truncated plan.
var ErrBudgetInfeasible = errors.New("token budget infeasible for model context window")

const (
	// Output reservation: fixed envelope plus a per-recommendation cost.
	outputOverheadTokens = 160
	perItemOutputTokens  = 40

	// The output reservation never exceeds this fraction of the window.
	outputSafetyFraction = 0.5

	// Fixed allowance for message framing around the prompt text.
	promptPaddingTokens = 32

	// Input floor applied even for tiny models, and the smallest output
	// reservation we will shrink to while honoring that floor.
	minInputTokens          = 64
	minReservedOutputTokens = perItemOutputTokens
)

// TokenCounter estimates token cost for a text block. Counts are approximate
// by contract; the budgeter compensates with conservative reservations.
type TokenCounter interface {
	Count(text string) int
}

// BudgetRequest is the input to a token budget build.
type BudgetRequest struct {
	Provider     string
	Model        core.ModelDescriptor
	SystemPrompt string
	ToolSchema   string

	// SamplingPreview is a sequence of self-contained text blocks selected
	// greedily in order until the input budget is exhausted.
	SamplingPreview []string

	TargetCount int
}

// TokenBudgeter computes per-request token budget plans.
type TokenBudgeter struct {
	Counter TokenCounter
}

// Build produces an immutable plan satisfying:
// allowedInput + reservedOutput <= contextTokens, and for targets > 0,
// batchSize * batches >= target. A zero target yields the trivial safe plan
// {samplingItems: 0, batchSize: 1, batches: 1}.
func (b *TokenBudgeter) Build(ctx context.Context, req BudgetRequest) (*core.TokenBudgetPlan, error) {
	if b == nil || b.Counter == nil {
		return nil, errors.New("token counter not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contextTokens := req.Model.ContextTokens
	if contextTokens <= 0 {
		return nil, fmt.Errorf("%w: model %q reports context window %d", ErrBudgetInfeasible, req.Model.ID, contextTokens)
	}

	promptTokens := b.Counter.Count(req.SystemPrompt) + b.Counter.Count(req.ToolSchema) + promptPaddingTokens
	if promptTokens >= contextTokens {
		return nil, fmt.Errorf("%w: prompt overhead %d tokens, context window %d", ErrBudgetInfeasible, promptTokens, contextTokens)
	}

	target := req.TargetCount
	if target < 0 {
		target = 0
	}

	reserved := outputOverheadTokens + target*perItemOutputTokens
	if ceiling := int(outputSafetyFraction * float64(contextTokens)); reserved > ceiling {
		reserved = ceiling
	}
	if reserved < minReservedOutputTokens {
		reserved = minReservedOutputTokens
	}

	allowed := contextTokens - reserved - promptTokens
	if allowed < minInputTokens {
		// Honor the input floor by shrinking the output reservation, never by
		// exceeding the window.
		allowed = minInputTokens
		reserved = contextTokens - promptTokens - allowed
		if reserved < minReservedOutputTokens {
			reserved = minReservedOutputTokens
			allowed = contextTokens - promptTokens - reserved
		}
		if allowed <= 0 {
			return nil, fmt.Errorf("%w: prompt overhead %d + minimum output reservation exceed context window %d", ErrBudgetInfeasible, promptTokens, contextTokens)
		}
	}

	samplingItems := 0
	if target > 0 {
		running := 0
		for _, entry := range req.SamplingPreview {
			cost := b.Counter.Count(entry)
			if running+cost > allowed {
				break
			}
			running += cost
			samplingItems++
		}
	}

	batchSize := 1
	batches := 1
	if target > 0 {
		batchSize = (reserved - outputOverheadTokens) / perItemOutputTokens
		if batchSize < 1 {
			batchSize = 1
		}
		if batchSize > target {
			batchSize = target
		}
		batches = (target + batchSize - 1) / batchSize
	}

	plan := &core.TokenBudgetPlan{
		AllowedInputTokens:   allowed,
		ReservedOutputTokens: reserved,
		SamplingItems:        samplingItems,
		BatchSize:            batchSize,
		Batches:              batches,
	}
	plan.Rationale = fmt.Sprintf(
		"model %s: context %d, prompt overhead %d, reserved output %d, allowed input %d; kept %d/%d sampling entries; target %d as %d batch(es) of %d",
		req.Model.ID, contextTokens, promptTokens, reserved, allowed,
		samplingItems, len(req.SamplingPreview), target, batches, batchSize,
	)

	return plan, nil
}
