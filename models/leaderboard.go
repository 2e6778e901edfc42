package models

import "github.com/google/uuid"

// LeaderboardSortKey selects the column the leaderboard is ordered by.
type LeaderboardSortKey string

const (
	SortByWins          LeaderboardSortKey = "wins"
	SortByLongestStreak LeaderboardSortKey = "longest_streak"
	SortByTokens        LeaderboardSortKey = "tokens"
	SortByXP            LeaderboardSortKey = "xp"
)

func (k LeaderboardSortKey) Valid() bool {
	switch k {
	case SortByWins, SortByLongestStreak, SortByTokens, SortByXP:
		return true
	default:
		return false
	}
}

// Value extracts the sort value from a competitor.
func (k LeaderboardSortKey) Value(c *Competitor) int {
	switch k {
	case SortByLongestStreak:
		return c.LongestStreak
	case SortByTokens:
		return c.Tokens
	case SortByXP:
		return c.XP
	default:
		return c.Wins
	}
}

type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	CompetitorID  uuid.UUID `json:"competitor_id"`
	Name          string    `json:"name"`
	Wins          int       `json:"wins"`
	LongestStreak int       `json:"longest_streak"`
	Tokens        int       `json:"tokens"`
	XP            int       `json:"xp"`
}
