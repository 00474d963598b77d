package features

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregation is the statistic computed over a rolling window.
type Aggregation int

const (
	AggMean Aggregation = iota
	AggSum
	// AggDelta is the last value minus the first value in the window.
	AggDelta
)

// RollingWindowSpec defines a causal statistic over the previous Window observations
// of a group. Window <= 0 means an expanding window over all prior observations.
// MinPeriods is the minimum number of non-NaN values needed for a value.
type RollingWindowSpec struct {
	Window     int
	MinPeriods int
	Agg        Aggregation

	// IncludeCurrent puts the row's own value in its window. Only trend-style
	// statistics that describe the current row set it.
	IncludeCurrent bool
}

// Observation is one row fed to a rolling statistic.
type Observation struct {
	Group string
	Date  time.Time
	Seq   int
	Value float64

	// Probe rows are evaluated against the group's history but never enter it.
	Probe bool

	// Fixture, when non-zero, holds a row out of the history of other rows of
	// the same fixture.
	Fixture int64
}

// Apply computes the statistic for every observation, returned in input order.
// Groups are evaluated concurrently with at most workers goroutines.
func (s RollingWindowSpec) Apply(ctx context.Context, obs []Observation, workers int) ([]float64, error) {
	out := make([]float64, len(obs))
	groups := make(map[string][]int)
	var order []string
	for i, o := range obs {
		if _, ok := groups[o.Group]; !ok {
			order = append(order, o.Group)
		}
		groups[o.Group] = append(groups[o.Group], i)
	}

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, key := range order {
		idx := groups[key]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.applyGroup(obs, idx, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// applyGroup writes only to out positions in idx, so groups never share memory.
func (s RollingWindowSpec) applyGroup(obs []Observation, idx []int, out []float64) {
	dates := make([]time.Time, len(idx))
	seqs := make([]int, len(idx))
	for k, i := range idx {
		dates[k] = obs[i].Date
		seqs[k] = obs[i].Seq
	}
	ordered := chronologicalOrder(dates, seqs)

	var history, pending []float64
	var fixture int64
	for _, k := range ordered {
		o := obs[idx[k]]
		if o.Fixture == 0 || o.Fixture != fixture {
			history = append(history, pending...)
			pending = pending[:0]
			fixture = o.Fixture
		}
		if s.IncludeCurrent {
			window := s.trim(append(history, o.Value))
			out[idx[k]] = s.aggregate(window)
		} else {
			out[idx[k]] = s.aggregate(s.trim(history))
		}
		if o.Probe {
			continue
		}
		if o.Fixture == 0 {
			history = append(history, o.Value)
		} else {
			pending = append(pending, o.Value)
		}
	}
}

func (s RollingWindowSpec) trim(values []float64) []float64 {
	if s.Window > 0 && len(values) > s.Window {
		return values[len(values)-s.Window:]
	}
	return values
}

func (s RollingWindowSpec) aggregate(window []float64) float64 {
	present := make([]float64, 0, len(window))
	for _, v := range window {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) < s.MinPeriods {
		return math.NaN()
	}

	switch s.Agg {
	case AggSum:
		return floats.Sum(present)
	case AggDelta:
		if len(window) == 0 {
			return math.NaN()
		}
		return window[len(window)-1] - window[0]
	default:
		if len(present) == 0 {
			return math.NaN()
		}
		return stat.Mean(present, nil)
	}
}

// chronologicalOrder returns positions sorted by date, then seq, then position.
func chronologicalOrder(dates []time.Time, seqs []int) []int {
	order := make([]int, len(dates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := dates[order[a]], dates[order[b]]
		if !da.Equal(db) {
			return da.Before(db)
		}
		return seqs[order[a]] < seqs[order[b]]
	})
	return order
}
