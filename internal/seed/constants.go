package seed

import "time"

// Runner configuration constants.
const (
	DefaultProcessTimeout = 2 * time.Minute
	ProcessPollInterval   = 500 * time.Millisecond
	PercentageMultiplier  = 100
	ProgressInterval      = time.Second
	recommendationLimit   = 10
)

// DefaultRegions mirrors the regions the scoring configuration knows about.
var DefaultRegions = []string{"KR", "CN", "JP", "EU", "NA", "BR"} //nolint:gochecknoglobals // read-only defaults

// DefaultGames are the titles generated players play.
var DefaultGames = []string{"lol", "valorant"} //nolint:gochecknoglobals // read-only defaults
