package core

import "strings"

// Pause record tokens. A record holds at most one flag token and at most one
// cron token.
const (
	PauseTokenPaused  = "true"
	PauseTokenRunning = "false"
	PauseCronPrefix   = "Cron:"
)

// PauseState is the decoded form of a JobPauseOf set.
type PauseState struct {
	Paused       bool
	SavedCron    string
	HasSavedCron bool
}

// DecodePauseState reads the tokens of a pause record. Unknown tokens are
// ignored; when several cron tokens are present the first one wins.
func DecodePauseState(tokens []string) PauseState {
	var s PauseState
	for _, t := range tokens {
		switch {
		case t == PauseTokenPaused:
			s.Paused = true
		case strings.HasPrefix(t, PauseCronPrefix) && !s.HasSavedCron:
			s.SavedCron = strings.TrimPrefix(t, PauseCronPrefix)
			s.HasSavedCron = true
		}
	}
	return s
}

// Tokens encodes s into the set members written to a pause record.
func (s PauseState) Tokens() []string {
	flag := PauseTokenRunning
	if s.Paused {
		flag = PauseTokenPaused
	}
	tokens := []string{flag}
	if s.HasSavedCron {
		tokens = append(tokens, PauseCronPrefix+s.SavedCron)
	}
	return tokens
}
