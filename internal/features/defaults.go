package features

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Window sizes used when no configuration overrides them.
const (
	DefaultFormWindow     = 5
	DefaultH2HWindow      = 5
	DefaultBaselineWindow = 5
	DefaultTrendWindow    = 3
	DefaultWorkers        = 4
)

// Product defaults for features without enough history.
const (
	DefaultFormWinRate  = 0.5
	DefaultH2HWinRate   = 0.5
	DefaultH2HDrawRate  = 0.3
	DefaultH2HLossRate  = 0.2
	DefaultRollingValue = 0.0
)

// RatioEpsilon is added to denominators that may be zero.
const RatioEpsilon = 1e-5

// Policy carries the window sizes and parallelism for one pipeline run.
type Policy struct {
	FormWindow         int
	H2HWindow          int
	BaselineWindow     int
	BaselineMinHistory int
	TrendWindow        int
	Workers            int
}

func DefaultPolicy() Policy {
	return Policy{
		FormWindow:         DefaultFormWindow,
		H2HWindow:          DefaultH2HWindow,
		BaselineWindow:     DefaultBaselineWindow,
		BaselineMinHistory: DefaultBaselineWindow,
		TrendWindow:        DefaultTrendWindow,
		Workers:            DefaultWorkers,
	}
}

// SafeRatio returns num/den, or 0 when the result is undefined.
func SafeRatio(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) {
		return 0
	}
	return num / den
}

// EpsRatio returns num/(den+RatioEpsilon).
func EpsRatio(num, den float64) float64 {
	return num / (den + RatioEpsilon)
}

// GroupKey joins key parts into a single grouping key.
func GroupKey(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// HistoryReport counts values that were defaulted or rows that were dropped
// because a causal feature had too little history behind it.
type HistoryReport struct {
	mu        sync.Mutex
	defaulted map[string]int
	dropped   int
}

func NewHistoryReport() *HistoryReport {
	return &HistoryReport{defaulted: make(map[string]int)}
}

// FillDefault replaces NaN entries in values with def and records how many were replaced.
func (r *HistoryReport) FillDefault(feature string, values []float64, def float64) {
	n := 0
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = def
			n++
		}
	}
	if n == 0 {
		return
	}
	r.mu.Lock()
	r.defaulted[feature] += n
	r.mu.Unlock()
}

func (r *HistoryReport) AddDropped(n int) {
	r.mu.Lock()
	r.dropped += n
	r.mu.Unlock()
}

// Defaulted returns the number of defaulted values per feature.
func (r *HistoryReport) Defaulted() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.defaulted))
	for k, v := range r.defaulted {
		out[k] = v
	}
	return out
}

func (r *HistoryReport) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Log emits one warning summarizing insufficient history, if any.
func (r *HistoryReport) Log(log *logrus.Entry) {
	defaulted := r.Defaulted()
	dropped := r.Dropped()
	if len(defaulted) == 0 && dropped == 0 {
		return
	}

	names := make([]string, 0, len(defaulted))
	total := 0
	for name, n := range defaulted {
		names = append(names, name)
		total += n
	}
	sort.Strings(names)

	log.WithFields(logrus.Fields{
		"defaulted_values":   total,
		"defaulted_features": names,
		"dropped_rows":       dropped,
	}).Warn("Insufficient history for causal features")
}
