package combat

import (
	"fmt"

	"github.com/Dosada05/fight-train/models"
)

const (
	minRounds        = 2
	roundsSpread     = 3 // 2, 3 or 4 rounds
	roundJitter      = 10
	minRoundDamage   = 5
	criticalChance   = 0.05
	heavyChance      = 0.30
	counterChance    = 0.20
	maxCounterDamage = 15
)

// narrate splits the winner's damage budget across rounds. The returned sequence
// is produced once per fight; counter-hits by the loser never consume the budget.
func (r *Resolver) narrate(winner, loser Fighter, damage int) ([]models.RoundEvent, int) {
	roundCount := minRounds + r.rng.IntN(roundsSpread)
	share := damage / roundCount
	remaining := damage
	counterTotal := 0

	events := make([]models.RoundEvent, 0, roundCount*2+1)
	for round := 1; round <= roundCount && remaining > 0; round++ {
		amount := share + r.rng.IntN(2*roundJitter+1) - roundJitter
		if amount < minRoundDamage {
			amount = minRoundDamage
		}
		if amount > remaining {
			amount = remaining
		}
		remaining -= amount

		category := r.rollCategory()
		events = append(events, models.RoundEvent{
			Round:    round,
			Attacker: winner.ID,
			Defender: loser.ID,
			Amount:   amount,
			Category: category,
			Message:  hitMessage(category, winner.Name, loser.Name, amount),
		})

		if remaining > 0 && r.rng.Float64() < counterChance {
			counter := 1 + r.rng.IntN(maxCounterDamage)
			if counter > remaining {
				counter = remaining
			}
			counterTotal += counter
			events = append(events, models.RoundEvent{
				Round:    round,
				Attacker: loser.ID,
				Defender: winner.ID,
				Amount:   counter,
				Category: models.HitCounter,
				Message:  hitMessage(models.HitCounter, loser.Name, winner.Name, counter),
			})
		}
	}

	if remaining > 0 {
		events = append(events, models.RoundEvent{
			Round:    roundCount,
			Attacker: winner.ID,
			Defender: loser.ID,
			Amount:   remaining,
			Category: models.HitFinisher,
			Message:  hitMessage(models.HitFinisher, winner.Name, loser.Name, remaining),
		})
	}
	return events, counterTotal
}

func (r *Resolver) rollCategory() models.HitCategory {
	if r.rng.Float64() < criticalChance {
		return models.HitCritical
	}
	if r.rng.Float64() < heavyChance {
		return models.HitHeavy
	}
	return models.HitNormal
}

func hitMessage(category models.HitCategory, attacker, defender string, amount int) string {
	switch category {
	case models.HitCritical:
		return fmt.Sprintf("CRITICAL! %s catches %s clean for %d damage", attacker, defender, amount)
	case models.HitHeavy:
		return fmt.Sprintf("%s lands a heavy combination on %s for %d damage", attacker, defender, amount)
	case models.HitCounter:
		return fmt.Sprintf("%s fires back at %s for %d damage", attacker, defender, amount)
	case models.HitFinisher:
		return fmt.Sprintf("%s finishes %s with %d damage", attacker, defender, amount)
	default:
		return fmt.Sprintf("%s hits %s for %d damage", attacker, defender, amount)
	}
}
