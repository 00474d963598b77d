package engine

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/match-features/internal/features"
)

func numbered(n int) *features.Table {
	t := features.NewTable(n)
	ids := make([]float64, n)
	for i := range ids {
		ids[i] = float64(i)
	}
	t.AddNumeric("id", features.RoleKey, ids)
	return t
}

func TestChronologicalSplit(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		fraction float64
		wantTest int
	}{
		{"exact", 10, 0.2, 2},
		{"rounds test size up", 10, 0.25, 3},
		{"small table", 3, 0.2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			train, test, err := ChronologicalSplit(numbered(tt.rows), tt.fraction)
			require.NoError(t, err)
			assert.Equal(t, tt.rows-tt.wantTest, train.Rows())
			assert.Equal(t, tt.wantTest, test.Rows())

			ids, _ := test.Float("id")
			assert.Equal(t, float64(tt.rows-tt.wantTest), ids[0], "test rows are the most recent")
		})
	}
}

func TestChronologicalSplit_Invalid(t *testing.T) {
	_, _, err := ChronologicalSplit(numbered(10), 0)
	assert.Error(t, err)
	_, _, err = ChronologicalSplit(numbered(1), 0.2)
	assert.Error(t, err)
}

func TestRandomSplit_Deterministic(t *testing.T) {
	trainA, testA, err := RandomSplit(numbered(20), 0.2, 42)
	require.NoError(t, err)
	trainB, testB, err := RandomSplit(numbered(20), 0.2, 42)
	require.NoError(t, err)

	idsA, _ := testA.Float("id")
	idsB, _ := testB.Float("id")
	assert.Equal(t, idsA, idsB)
	assert.Equal(t, 4, testA.Rows())
	assert.Equal(t, 16, trainB.Rows())

	train, _ := trainA.Float("id")
	all := append(append([]float64(nil), train...), idsA...)
	sort.Float64s(all)
	for i, v := range all {
		assert.Equal(t, float64(i), v)
	}
	assert.True(t, sort.Float64sAreSorted(idsA))
}
