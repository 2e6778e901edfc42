// Package combat resolves a fight between two competitors.
//
// Resolution is pure with respect to its inputs: the only state consulted
// besides the two fighters is the injected random Source. Given the same
// draws, Resolve always produces the same verdict.
package combat

import (
	"math"
	"time"

	"github.com/Dosada05/fight-train/models"
	"github.com/google/uuid"
)

const (
	strikingWeight  = 1.2
	speedWeight     = 1.1
	staminaWeight   = 1.3
	grapplingWeight = 1.4

	flatBonusMin   = 5.0
	flatBonusSpan  = 20.0
	luckFactorMin  = 1.0
	luckFactorSpan = 2.0

	minDamagePercent = 10
	maxDamagePercent = 100

	roundDuration = 1500 * time.Millisecond
)

// Fighter is the resolver's read-only view of a competitor.
type Fighter struct {
	ID         uuid.UUID
	Name       string
	Attributes models.Attributes
}

// FighterFrom copies the fields the resolver needs.
func FighterFrom(c *models.Competitor) Fighter {
	return Fighter{ID: c.ID, Name: c.Name, Attributes: c.Attributes}
}

// Resolver decides fights using draws from its Source.
type Resolver struct {
	rng    Source
	coins  int
	tokens int
}

// NewResolver returns a Resolver paying the fight rewards configured in rules.
func NewResolver(rng Source, rules models.Rules) *Resolver {
	return &Resolver{
		rng:    rng,
		coins:  rules.FightCoins,
		tokens: rules.FightTokens,
	}
}

// BaseScore is the weighted, deterministic part of a fighter's score.
func BaseScore(a models.Attributes) float64 {
	return float64(a.Striking)*strikingWeight +
		float64(a.Speed)*speedWeight +
		float64(a.Stamina)*staminaWeight +
		float64(a.Grappling)*grapplingWeight
}

// DamagePercent is the winner's relative margin, clamped to [10,100].
func DamagePercent(winnerFinal, loserFinal float64) int {
	if loserFinal <= 0 {
		return maxDamagePercent
	}
	margin := (winnerFinal - loserFinal) / loserFinal * 100
	margin = math.Max(minDamagePercent, math.Min(maxDamagePercent, margin))
	return int(math.Floor(margin))
}

// ExperienceRewards returns the XP earned by each side.
func ExperienceRewards(winnerFinal, loserFinal float64, damagePercent int) (winnerXP, loserXP int) {
	winnerXP = int(math.Floor(winnerFinal/10)) + damagePercent/2
	loserXP = int(math.Floor(loserFinal / 20))
	return winnerXP, loserXP
}

func (r *Resolver) finalScore(f Fighter) float64 {
	flat := flatBonusMin + r.rng.Float64()*flatBonusSpan
	luck := float64(f.Attributes.Luck) * (luckFactorMin + r.rng.Float64()*luckFactorSpan)
	return BaseScore(f.Attributes) + flat + luck
}

// Resolve decides a fight. Ties go to a, the first-named fighter.
func (r *Resolver) Resolve(a, b Fighter) models.Verdict {
	aFinal := r.finalScore(a)
	bFinal := r.finalScore(b)

	winner, loser := a, b
	winnerFinal, loserFinal := aFinal, bFinal
	if bFinal > aFinal {
		winner, loser = b, a
		winnerFinal, loserFinal = bFinal, aFinal
	}

	damage := DamagePercent(winnerFinal, loserFinal)
	rounds, counterDamage := r.narrate(winner, loser, damage)
	winnerXP, loserXP := ExperienceRewards(winnerFinal, loserFinal, damage)

	return models.Verdict{
		Winner: models.FighterResult{
			CompetitorID: winner.ID,
			Score:        winnerFinal,
			XPGained:     winnerXP,
			DamageDealt:  damage,
			DamageTaken:  counterDamage,
		},
		Loser: models.FighterResult{
			CompetitorID: loser.ID,
			Score:        loserFinal,
			XPGained:     loserXP,
			DamageDealt:  counterDamage,
			DamageTaken:  damage,
		},
		DamagePercent: damage,
		Rounds:        rounds,
		Duration:      time.Duration(len(rounds)) * roundDuration,
		WinnerCoins:   r.coins,
		WinnerTokens:  r.tokens,
	}
}
