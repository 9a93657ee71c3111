// Package samplepipeline is the concrete batch pipeline flowline's CLI
// exercises: an order-events ETL built from pkg/pipeline/batch's
// composable stages. It decodes newline-delimited JSON order events,
// drops invalid ones, buckets each into a spend tier, and aggregates the
// survivors into a Report.
package samplepipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmylchreest/flowline/pkg/pipeline/batch"
	"github.com/jmylchreest/flowline/pkg/pipeline/listadapter"
	"github.com/jmylchreest/flowline/pkg/pipeline/result"
)

// OrderEvent is one decoded line of input.
type OrderEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Spend tier thresholds, in cents.
const (
	mediumTierThreshold = 2000
	largeTierThreshold  = 10000
)

// EnrichedOrder is an OrderEvent tagged with its spend tier.
type EnrichedOrder struct {
	OrderEvent
	Tier string `json:"tier"`
}

// Report is the pipeline's final aggregate.
type Report struct {
	TotalOrders      int            `json:"totalOrders"`
	TotalAmountCents int64          `json:"totalAmountCents"`
	ByTier           map[string]int `json:"byTier"`
}

// ParseStage decodes each input line as an OrderEvent. A line that's blank
// or fails to decode is skipped rather than failing the whole run, since a
// malformed record shouldn't block the rest of the batch.
func ParseStage(retry *batch.RetryPolicy) batch.Stage {
	return batch.Map[string, OrderEvent](parseLine, listadapter.Options{ErrorStrategy: listadapter.SkipFailed}, retry)
}

func parseLine(_ context.Context, line string) (OrderEvent, error) {
	var e OrderEvent
	if strings.TrimSpace(line) == "" {
		return e, fmt.Errorf("blank line")
	}
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return e, fmt.Errorf("decoding order event: %w", err)
	}
	return e, nil
}

// ValidateStage keeps orders with a positive amount and a known user,
// dropping the rest.
func ValidateStage() batch.Stage {
	return batch.Filter[OrderEvent](func(_ context.Context, e OrderEvent) (bool, error) {
		return e.AmountCents > 0 && e.UserID != "", nil
	}, nil)
}

// EnrichStage tags each order with its spend tier.
func EnrichStage() batch.Stage {
	return batch.Map[OrderEvent, EnrichedOrder](func(_ context.Context, e OrderEvent) (EnrichedOrder, error) {
		return EnrichedOrder{OrderEvent: e, Tier: tierFor(e.AmountCents)}, nil
	}, listadapter.Options{}, nil)
}

func tierFor(amountCents int64) string {
	switch {
	case amountCents >= largeTierThreshold:
		return "large"
	case amountCents >= mediumTierThreshold:
		return "medium"
	default:
		return "small"
	}
}

// AggregateStage reduces the enriched orders into a Report. It doesn't fit
// Map/Filter's per-item shape, so it's built directly with NewStage.
func AggregateStage() batch.Stage {
	return batch.NewStage("aggregate", nil, false, func(_ context.Context, sc batch.StageContext) result.Result[any] {
		start := time.Now()
		items, ok := sc.Input.([]EnrichedOrder)
		if !ok {
			se := result.NewStageError(result.CodeBatchConversionError, fmt.Sprintf("aggregate: unexpected input type %T", sc.Input), nil)
			return result.Err[any](se, result.NewStageMetadata("aggregate", start, time.Now(), "", ""))
		}

		report := Report{ByTier: make(map[string]int)}
		for _, item := range items {
			report.TotalOrders++
			report.TotalAmountCents += item.AmountCents
			report.ByTier[item.Tier]++
		}

		return result.Ok[any](report, result.NewStageMetadata("aggregate", start, time.Now(), "", ""))
	})
}

// Build assembles the full parse -> validate -> enrich -> aggregate chain.
func Build(retry *batch.RetryPolicy) batch.Pipeline[[]string] {
	return batch.Start[[]string](nil).
		Add("parse", ParseStage(retry)).
		Add("validate", ValidateStage()).
		Add("enrich", EnrichStage()).
		Add("aggregate", AggregateStage())
}

// Run executes the full pipeline against lines in one call, for callers
// that don't need per-stage progress reporting.
func Run(ctx context.Context, lines []string, retry *batch.RetryPolicy) result.Result[Report] {
	return batch.Execute[[]string, Report](Build(retry), ctx, lines)
}
