package models

// PlayerFixtureStats is one player's statistics for one fixture.
type PlayerFixtureStats struct {
	PlayerID   int64
	PlayerName string
	FixtureID  int64
	Team       string
	Position   string

	// SquadNumber is NaN when the player did not appear in the fixture.
	SquadNumber float64
	Minutes     float64
	Rating      float64

	ShotsTotal           float64
	ShotsOn              float64
	GoalsTotal           float64
	GoalsAssists         float64
	PassesTotal          float64
	PassesKey            float64
	PassesAccuracy       float64 // fraction in [0, 1]
	TacklesTotal         float64
	TacklesBlocks        float64
	TacklesInterceptions float64
	DuelsTotal           float64
	DuelsWon             float64
	DribblesAttempts     float64
	DribblesSuccess      float64
	FoulsDrawn           float64
	FoulsCommitted       float64
	CardsYellow          float64
	CardsRed             float64

	Seq int
}
