package listadapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/jmylchreest/flowline/pkg/pipeline/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_FailFastSequential(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	f := func(_ context.Context, i int) (int, error) {
		if i == 3 {
			return 0, fmt.Errorf("item %d failed", i)
		}
		return i * 2, nil
	}

	r := Apply(context.Background(), items, f, Options{ErrorStrategy: FailFast})
	require.True(t, r.IsErr())
	meta := r.Meta.ListMetadata
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.SuccessCount) // items 1,2 succeeded before failure
	assert.Equal(t, 1, meta.FailureCount)
	assert.Equal(t, 2, meta.SkippedCount) // items 4,5 unprocessed
	assert.Equal(t, 5, meta.TotalItems)
}

func TestApply_FailFastParallel_LowestIndexFailure(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	f := func(_ context.Context, i int) (int, error) {
		if i == 2 || i == 4 {
			return 0, fmt.Errorf("item %d failed", i)
		}
		return i, nil
	}

	r := Apply(context.Background(), items, f, Options{ErrorStrategy: FailFast, Parallel: true, ConcurrencyLimit: 5})
	require.True(t, r.IsErr())
	assert.Contains(t, r.Error().Message, "item 2 failed")
	assert.Equal(t, 0, r.Meta.ListMetadata.SkippedCount) // all attempted
}

func TestApply_CollectErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	f := func(_ context.Context, i int) (int, error) {
		if i%2 == 0 {
			return 0, fmt.Errorf("even %d", i)
		}
		return i, nil
	}

	r := Apply(context.Background(), items, f, Options{ErrorStrategy: CollectErrors})
	require.True(t, r.IsErr())
	assert.Equal(t, result.CodeListProcessingErrors, r.Error().Code)
	assert.Equal(t, "2 of 5 items failed", r.Error().Message)
	assert.Equal(t, 3, r.Meta.ListMetadata.SuccessCount)
	assert.Equal(t, 2, r.Meta.ListMetadata.FailureCount)

	var collected *CollectedErrors
	require.ErrorAs(t, r.Error().Cause, &collected)
	require.Len(t, collected.Items, 2)
	assert.Equal(t, 1, collected.Items[0].Index)
	assert.Equal(t, 3, collected.Items[1].Index)
}

func TestApply_CollectErrorsParallel_PreservesIndexOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	f := func(_ context.Context, i int) (int, error) {
		if i%2 == 0 {
			return 0, fmt.Errorf("even %d", i)
		}
		return i, nil
	}

	r := Apply(context.Background(), items, f, Options{ErrorStrategy: CollectErrors, Parallel: true, ConcurrencyLimit: 5})
	require.True(t, r.IsErr())

	var collected *CollectedErrors
	require.ErrorAs(t, r.Error().Cause, &collected)
	require.Len(t, collected.Items, 2)
	assert.Equal(t, 1, collected.Items[0].Index)
	assert.Equal(t, 3, collected.Items[1].Index)
}

func TestApply_SkipFailed(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	// stage1 doubles odd inputs only (simulating "throws on even input")
	stage1 := func(_ context.Context, i int) (int, error) {
		if i%2 == 0 {
			return 0, fmt.Errorf("even input %d", i)
		}
		return i * 2, nil
	}
	r1 := Apply(context.Background(), items, stage1, Options{ErrorStrategy: SkipFailed})
	require.True(t, r1.IsOk())
	stage1Out, _ := r1.Data()
	assert.Equal(t, []int{2, 6, 10, 14}, stage1Out)

	// stage2 adds 5 and rejects values over 11 (15 and 19)
	stage2 := func(_ context.Context, i int) (int, error) {
		v := i + 5
		if v > 11 {
			return 0, fmt.Errorf("value %d exceeds limit", v)
		}
		return v, nil
	}
	r2 := Apply(context.Background(), stage1Out, stage2, Options{ErrorStrategy: SkipFailed})
	require.True(t, r2.IsOk())
	stage2Out, _ := r2.Data()
	// The correct semantics (not the source suite's buggy [7,11,15]
	// assertion, per spec.md §9's own note) yield [7, 11].
	assert.Equal(t, []int{7, 11}, stage2Out)
}

func TestApply_EmptyInput(t *testing.T) {
	r := Apply(context.Background(), []int{}, func(_ context.Context, i int) (int, error) { return i, nil }, Options{})
	require.True(t, r.IsOk())
	data, _ := r.Data()
	assert.Empty(t, data)
	assert.Equal(t, 0, r.Meta.ListMetadata.TotalItems)
}

func TestBatchStage(t *testing.T) {
	batch := BatchStage[int](3)
	out, err := batch(context.Background(), []int{1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, out)
}

func TestBatchStage_PanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() { BatchStage[int](0) })
}

func TestFlattenStage(t *testing.T) {
	flatten := FlattenStage[int]()
	out, err := flatten(context.Background(), [][]int{{1, 2}, {3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, out)
}

func TestFilterStage(t *testing.T) {
	filter := FilterStage(func(_ context.Context, i int) (bool, error) { return i%2 == 0, nil })
	out, err := filter(context.Background(), []int{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, out)
}

func TestFilterStage_PredicateError(t *testing.T) {
	boom := fmt.Errorf("predicate boom")
	filter := FilterStage(func(_ context.Context, i int) (bool, error) {
		if i == 3 {
			return false, boom
		}
		return true, nil
	})
	_, err := filter(context.Background(), []int{1, 2, 3, 4})
	require.ErrorIs(t, err, boom)
}

func TestApply_ConcurrencyOneMatchesSequential(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	f := func(_ context.Context, i int) (int, error) { return i * i, nil }

	seqResult := Apply(context.Background(), items, f, Options{ErrorStrategy: CollectErrors})
	parResult := Apply(context.Background(), items, f, Options{ErrorStrategy: CollectErrors, Parallel: true, ConcurrencyLimit: 1})

	seqData, _ := seqResult.Data()
	parData, _ := parResult.Data()
	assert.Equal(t, seqData, parData)
}
