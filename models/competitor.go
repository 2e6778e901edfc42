package models

import (
	"time"

	"github.com/google/uuid"
)

// WeightClass is the eligibility partition a competitor fights in. It is fixed at creation.
type WeightClass string

const (
	WeightFlyweight        WeightClass = "flyweight"
	WeightBantamweight     WeightClass = "bantamweight"
	WeightFeatherweight    WeightClass = "featherweight"
	WeightLightweight      WeightClass = "lightweight"
	WeightWelterweight     WeightClass = "welterweight"
	WeightMiddleweight     WeightClass = "middleweight"
	WeightLightHeavyweight WeightClass = "light-heavyweight"
	WeightHeavyweight      WeightClass = "heavyweight"
)

const (
	DefaultAttributeValue = 50
	MinAttributeValue     = 0
	MaxAttributeValue     = 100

	xpPerLevel = 100
)

var validWeightClasses = map[WeightClass]struct{}{
	WeightFlyweight:        {},
	WeightBantamweight:     {},
	WeightFeatherweight:    {},
	WeightLightweight:      {},
	WeightWelterweight:     {},
	WeightMiddleweight:     {},
	WeightLightHeavyweight: {},
	WeightHeavyweight:      {},
}

func (w WeightClass) Valid() bool {
	_, ok := validWeightClasses[w]
	return ok
}

// Attributes are the trainable combat stats of a competitor.
type Attributes struct {
	Striking  int `json:"striking" db:"striking"`
	Speed     int `json:"speed" db:"speed"`
	Stamina   int `json:"stamina" db:"stamina"`
	Grappling int `json:"grappling" db:"grappling"`
	Luck      int `json:"luck" db:"luck"`
	Defense   int `json:"defense" db:"defense"`
}

// DefaultAttributes returns a stat block with every attribute at the neutral value.
// Decoding a partial JSON object on top of it leaves the missing stats at 50.
func DefaultAttributes() Attributes {
	return Attributes{
		Striking:  DefaultAttributeValue,
		Speed:     DefaultAttributeValue,
		Stamina:   DefaultAttributeValue,
		Grappling: DefaultAttributeValue,
		Luck:      DefaultAttributeValue,
		Defense:   DefaultAttributeValue,
	}
}

// Clamped returns a copy with every attribute bounded to [0,100].
func (a Attributes) Clamped() Attributes {
	return Attributes{
		Striking:  clampAttribute(a.Striking),
		Speed:     clampAttribute(a.Speed),
		Stamina:   clampAttribute(a.Stamina),
		Grappling: clampAttribute(a.Grappling),
		Luck:      clampAttribute(a.Luck),
		Defense:   clampAttribute(a.Defense),
	}
}

func clampAttribute(v int) int {
	if v < MinAttributeValue {
		return MinAttributeValue
	}
	if v > MaxAttributeValue {
		return MaxAttributeValue
	}
	return v
}

// Placement points at the slot a competitor currently occupies.
type Placement struct {
	TrainID   uuid.UUID `json:"train_id"`
	CarIndex  int       `json:"car_index"`
	SlotIndex int       `json:"slot_index"`
}

// Competitor is a user-owned fighter together with its career state.
type Competitor struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	OwnerID       string      `json:"owner_id" db:"owner_id"`
	Name          string      `json:"name" db:"name"`
	WeightClass   WeightClass `json:"weight_class" db:"weight_class"`
	Attributes    Attributes  `json:"attributes"`
	Wins          int         `json:"wins" db:"wins"`
	Losses        int         `json:"losses" db:"losses"`
	CurrentStreak int         `json:"current_streak" db:"current_streak"`
	LongestStreak int         `json:"longest_streak" db:"longest_streak"`
	XP            int         `json:"xp" db:"xp"`
	Level         int         `json:"level" db:"-"`
	Coins         int         `json:"coins" db:"coins"`
	Tokens        int         `json:"tokens" db:"tokens"`
	Eliminated    bool        `json:"eliminated" db:"eliminated"`
	Placement     *Placement  `json:"placement,omitempty" db:"-"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

// LevelForXP derives the level shown for a given amount of experience.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/xpPerLevel + 1
}

// RecomputeLevel refreshes the derived Level field.
func (c *Competitor) RecomputeLevel() {
	c.Level = LevelForXP(c.XP)
}

// Placed reports whether the competitor currently holds a slot.
func (c *Competitor) Placed() bool {
	return c.Placement != nil
}

// Clone returns a deep copy.
func (c *Competitor) Clone() *Competitor {
	if c == nil {
		return nil
	}
	out := *c
	if c.Placement != nil {
		p := *c.Placement
		out.Placement = &p
	}
	return &out
}
