package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanMatches(t *testing.T) {
	matches := history()
	matches[0].Home.Corners = nan()
	matches[1].Home.Corners = 9
	matches[0].Away.Offsides = nan()
	matches[2].Away.Formation = ""
	other := played(5, 5, "A", "B", 1, 0)
	other.Season = "2024"
	other.Home.Shots = nan()
	matches = append(matches, other)

	cleaned := CleanMatches(matches)

	// Home corners of the other home sides in the same league season are 9, 5 and 5.
	assert.InDelta(t, 19.0/3.0, cleaned[0].Home.Corners, 1e-12)
	assert.Equal(t, 0.0, cleaned[0].Away.Offsides)
	assert.Equal(t, UnknownFormation, cleaned[2].Away.Formation)
	// The only home side of 2024 has no shots to borrow from.
	assert.True(t, math.IsNaN(cleaned[4].Home.Shots))

	assert.True(t, math.IsNaN(matches[0].Home.Corners), "input must not change")
}
