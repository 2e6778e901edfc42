package models

import "fmt"

// Rules holds the tunable constants of the game.
type Rules struct {
	CarCount       int `json:"car_count" yaml:"car_count"`
	FightCoins     int `json:"fight_coins" yaml:"fight_coins"`
	FightTokens    int `json:"fight_tokens" yaml:"fight_tokens"`
	ChampionCoins  int `json:"champion_coins" yaml:"champion_coins"`
	ChampionTokens int `json:"champion_tokens" yaml:"champion_tokens"`
	ChampionXP     int `json:"champion_xp" yaml:"champion_xp"`
}

func DefaultRules() Rules {
	return Rules{
		CarCount:       10,
		FightCoins:     50,
		FightTokens:    1,
		ChampionCoins:  500,
		ChampionTokens: 5,
		ChampionXP:     250,
	}
}

func (r Rules) Validate() error {
	if r.CarCount <= 0 {
		return fmt.Errorf("car_count must be positive, got %d", r.CarCount)
	}
	if r.FightCoins < 0 || r.FightTokens < 0 || r.ChampionCoins < 0 || r.ChampionTokens < 0 || r.ChampionXP < 0 {
		return fmt.Errorf("reward amounts must not be negative")
	}
	return nil
}
