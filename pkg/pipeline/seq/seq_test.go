package seq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func makeRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestMap(t *testing.T) {
	doubled := ToSlice(Map(FromSlice(makeRange(5)), func(i int) int { return i * 2 }))
	assert.Equal(t, []int{2, 4, 6, 8, 10}, doubled)
}

func TestFilter(t *testing.T) {
	even := ToSlice(Filter(FromSlice(makeRange(10)), func(i int) bool { return i%2 == 0 }))
	assert.Equal(t, []int{2, 4, 6, 8, 10}, even)
}

func TestFlatMap(t *testing.T) {
	out := ToSlice(FlatMap(FromSlice([]int{1, 2, 3}), func(i int) []int { return []int{i, i * 10} }))
	assert.Equal(t, []int{1, 10, 2, 20, 3, 30}, out)
}

func TestTap(t *testing.T) {
	var seen []int
	out := ToSlice(Tap(FromSlice(makeRange(3)), func(i int) { seen = append(seen, i) }))
	assert.Equal(t, []int{1, 2, 3}, out)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestTake(t *testing.T) {
	t.Run("takes first n and stops pulling", func(t *testing.T) {
		pulled := 0
		source := func(yield func(int) bool) {
			for i := 1; i <= 1000; i++ {
				pulled++
				if !yield(i) {
					return
				}
			}
		}
		out := ToSlice(Take(source, 10))
		assert.Equal(t, makeRange(10), out)
		assert.Equal(t, 10, pulled)
	})

	t.Run("zero yields nothing and pulls nothing", func(t *testing.T) {
		pulled := 0
		source := func(yield func(int) bool) {
			pulled++
			yield(1)
		}
		out := ToSlice(Take(source, 0))
		assert.Empty(t, out)
		assert.Equal(t, 0, pulled)
	})
}

func TestSkip(t *testing.T) {
	out := ToSlice(Skip(FromSlice(makeRange(5)), 2))
	assert.Equal(t, []int{3, 4, 5}, out)
}

func TestTakeWhile(t *testing.T) {
	out := ToSlice(TakeWhile(FromSlice([]int{1, 2, 3, 10, 4}), func(i int) bool { return i < 5 }))
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestSkipWhile(t *testing.T) {
	out := ToSlice(SkipWhile(FromSlice([]int{1, 2, 3, 10, 4}), func(i int) bool { return i < 5 }))
	assert.Equal(t, []int{10, 4}, out)
}

func TestBatch(t *testing.T) {
	t.Run("final group may be short", func(t *testing.T) {
		out := ToSlice(Batch(FromSlice(makeRange(7)), 3))
		assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, out)
	})

	t.Run("empty source yields nothing", func(t *testing.T) {
		out := ToSlice(Batch(FromSlice([]int{}), 3))
		assert.Empty(t, out)
	})
}

func TestFlatten_Idempotence(t *testing.T) {
	xs := makeRange(10)
	batched := ToSlice(Batch(FromSlice(xs), 3))
	var flattened []int
	for _, b := range batched {
		flattened = append(flattened, b...)
	}
	assert.Equal(t, xs, flattened)
}
