package leaderboard

import "errors"

var (
	// ErrAlreadyRunning is returned by Trigger while a pass is in progress.
	ErrAlreadyRunning = errors.New("leaderboard: update already in progress")

	ErrNoPopulation = errors.New("leaderboard: no population source")
)
