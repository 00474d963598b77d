package engine

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/stitts-dev/match-features/internal/features"
)

func testRows(rows int, testFraction float64) (int, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return 0, fmt.Errorf("test fraction %v outside (0, 1)", testFraction)
	}
	n := int(math.Ceil(float64(rows) * testFraction))
	if n == 0 || n >= rows {
		return 0, fmt.Errorf("cannot hold out %v of %d rows", testFraction, rows)
	}
	return n, nil
}

// ChronologicalSplit keeps the table's order: the last testFraction of rows,
// rounded up, is the test set.
func ChronologicalSplit(t *features.Table, testFraction float64) (train, test *features.Table, err error) {
	n, err := testRows(t.Rows(), testFraction)
	if err != nil {
		return nil, nil, err
	}
	cut := t.Rows() - n
	return t.Take(span(0, cut)), t.Take(span(cut, t.Rows())), nil
}

// RandomSplit shuffles rows with seed and holds out testFraction of them, rounded up.
// Both halves keep the table's relative row order.
func RandomSplit(t *features.Table, testFraction float64, seed int64) (train, test *features.Table, err error) {
	n, err := testRows(t.Rows(), testFraction)
	if err != nil {
		return nil, nil, err
	}
	perm := rand.New(rand.NewSource(seed)).Perm(t.Rows())
	testIdx := append([]int(nil), perm[:n]...)
	trainIdx := append([]int(nil), perm[n:]...)
	sort.Ints(testIdx)
	sort.Ints(trainIdx)
	return t.Take(trainIdx), t.Take(testIdx), nil
}

func span(from, to int) []int {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return idx
}
