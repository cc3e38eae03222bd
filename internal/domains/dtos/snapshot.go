package dtos

import (
	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

// Snapshot is the full state a client receives right after connecting.
type Snapshot struct {
	Account *entities.Account       `json:"account,omitempty"`
	Matches []entities.MatchSession `json:"matches"`
}

// MatchRecord is the archived form of a finished match.
type MatchRecord struct {
	MatchId   string                   `json:"matchId"`
	Players   []entities.SessionPlayer `json:"players"`
	Result    *entities.MatchResult    `json:"result"`
	Status    entities.MatchStatus     `json:"status"`
	Sgf       string                   `json:"sgf"`
	Moves     int                      `json:"moves"`
	StartedAt string                   `json:"startedAt"`
	EndedAt   string                   `json:"endedAt"`
	// Settled is set when ratings and rewards were already applied by the
	// sender.
	Settled bool `json:"settled"`
}
