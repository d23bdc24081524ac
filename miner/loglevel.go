package miner

import "log/slog"

// Custom slog levels for graduated verbosity.
// slog.LevelDebug is -4; lower values are more verbose.
const (
	// LevelTrace is used for -vv: per-commit state machine decisions.
	LevelTrace slog.Level = slog.LevelDebug - 4 // -8

	// LevelDump is used for -vvv: raw provider responses.
	LevelDump slog.Level = slog.LevelDebug - 8 // -12
)
