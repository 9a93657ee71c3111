// Package bridge implements spec.md §4.8's conversions between the batch
// and streaming pipeline kinds (C6/C7), plus the stage-categorization
// heuristic used to recommend which kind a given stage should run under.
package bridge

import "strings"

// Category classifies a stage's execution profile for the purposes of
// Recommend. It is always a best-effort guess from the stage's name unless
// the caller supplies an explicit override.
type Category string

const (
	CategoryPureTransform Category = "PURE_TRANSFORM"
	CategoryIOBound       Category = "IO_BOUND"
	CategoryAggregation   Category = "AGGREGATION"
	CategoryExpansion     Category = "EXPANSION"
	CategoryReduction     Category = "REDUCTION"
	CategoryStateful      Category = "STATEFUL"
)

var ioTokens = []string{"read", "write", "fetch", "api", "db", "database"}
var aggregationTokens = []string{"sort", "group", "aggregate", "sum", "count", "statistics"}
var expansionTokens = []string{"expand", "flatten", "flatmap", "duplicate"}
var reductionTokens = []string{"reduce", "fold", "collapse", "merge"}
var statefulTokens = []string{"state", "accumulate", "session", "cache"}

func containsAny(haystack string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			return true
		}
	}
	return false
}

// Categorize classifies stageName by a case-insensitive substring scan
// against a fixed token list per concern, per spec.md §4.8/§9. explicit, if
// non-empty, wins outright: this is the Go adaptation of the Open Question
// ("should the classifier be overridable?") recorded in DESIGN.md — a
// caller that already knows a stage's profile shouldn't have to fight the
// heuristic.
func Categorize(stageName string, explicit Category) Category {
	if explicit != "" {
		return explicit
	}
	name := strings.ToLower(stageName)
	switch {
	case containsAny(name, ioTokens):
		return CategoryIOBound
	case containsAny(name, aggregationTokens):
		return CategoryAggregation
	case containsAny(name, expansionTokens):
		return CategoryExpansion
	case containsAny(name, reductionTokens):
		return CategoryReduction
	case containsAny(name, statefulTokens):
		return CategoryStateful
	default:
		return CategoryPureTransform
	}
}

// Recommendation is Recommend's verdict on whether a stage of a given
// Category is worth running in parallel, with the reasoning a caller can
// surface in logs or documentation.
type Recommendation struct {
	Parallel bool
	Strength float64 // 0..1, confidence in the recommendation
	Reason   string
	Approach string
}

// Recommend maps a Category onto a parallel-execution recommendation.
// Aggregation, reduction and stateful stages see the whole collection (or
// carry state across items) and cannot be meaningfully parallelized at the
// item level; IO-bound and expansion stages are the ideal candidates;
// pure transforms default to a mild recommendation in favor of
// parallelism since they're typically independent per item but may be
// cheap enough that the overhead isn't worth it.
func Recommend(category Category) Recommendation {
	switch category {
	case CategoryIOBound:
		return Recommendation{
			Parallel: true, Strength: 0.9,
			Reason:   "IO-bound stages spend most of their time waiting on an external call, so concurrent in-flight requests overlap that latency",
			Approach: "parallel map with concurrency tuned to the backing service's capacity",
		}
	case CategoryAggregation:
		return Recommendation{
			Parallel: false, Strength: 0.8,
			Reason:   "aggregation needs the whole collection in view and can't be split across independent item workers",
			Approach: "sequential list stage, or a single reduction over the accumulated input",
		}
	case CategoryExpansion:
		return Recommendation{
			Parallel: true, Strength: 0.6,
			Reason:   "expansion stages are usually per-item independent, producing zero or more outputs without touching sibling items",
			Approach: "parallel flatMap, unordered if downstream doesn't depend on input order",
		}
	case CategoryReduction:
		return Recommendation{
			Parallel: false, Strength: 0.7,
			Reason:   "reduction folds items into an accumulator one at a time, so parallel workers would race on that accumulator",
			Approach: "sequential list stage",
		}
	case CategoryStateful:
		return Recommendation{
			Parallel: false, Strength: 0.9,
			Reason:   "stateful stages carry ordering or cross-item dependencies that parallel execution would break",
			Approach: "sequential execution only",
		}
	default:
		return Recommendation{
			Parallel: true, Strength: 0.5,
			Reason:   "pure transforms have no side effects or shared state between items",
			Approach: "parallel map, concurrency tuned to available CPU",
		}
	}
}
