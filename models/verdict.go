package models

import (
	"time"

	"github.com/google/uuid"
)

// HitCategory tags a narrated round.
type HitCategory string

const (
	HitNormal   HitCategory = "normal"
	HitHeavy    HitCategory = "heavy"
	HitCritical HitCategory = "critical"
	HitCounter  HitCategory = "counter"
	HitFinisher HitCategory = "finisher"
)

// RoundEvent is one entry of a fight narration.
type RoundEvent struct {
	Round    int         `json:"round"`
	Attacker uuid.UUID   `json:"attacker"`
	Defender uuid.UUID   `json:"defender"`
	Amount   int         `json:"amount"`
	Category HitCategory `json:"category"`
	Message  string      `json:"message"`
}

// FighterResult is one side of a verdict.
type FighterResult struct {
	CompetitorID uuid.UUID `json:"competitor_id"`
	Score        float64   `json:"score"`
	XPGained     int       `json:"xp_gained"`
	DamageDealt  int       `json:"damage_dealt"`
	DamageTaken  int       `json:"damage_taken"`
}

// Verdict is the resolved outcome of a fight. It is generated once and kept as a historical record.
type Verdict struct {
	Winner        FighterResult `json:"winner"`
	Loser         FighterResult `json:"loser"`
	DamagePercent int           `json:"damage_percent"`
	Rounds        []RoundEvent  `json:"rounds"`
	Duration      time.Duration `json:"duration"`
	WinnerCoins   int           `json:"winner_coins"`
	WinnerTokens  int           `json:"winner_tokens"`
}
