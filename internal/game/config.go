package game

import "time"

// Config holds the scheduler tuning constants. Zero fields take the defaults
// below; track geometry is in abstract track units with the obstacle spawn
// point at SpawnX and the player box at [PlayerX, PlayerX+PlayerWidth].
type Config struct {
	// BaseSpeed is the level-1 obstacle speed in track units per second.
	BaseSpeed float64

	// SpeedIncrement is added to the speed per level above 1.
	SpeedIncrement float64

	// SpawnX is where new obstacles enter the track.
	SpawnX float64

	// PlayerX and PlayerWidth define the player's collision box.
	PlayerX     float64
	PlayerWidth float64

	// RevealDistance is the gap between player and obstacle at which the
	// obstacle triggers and its phrase is revealed.
	RevealDistance float64

	// ObstacleSize is the level-1 obstacle width; ObstacleGrowth is added
	// per level above 1.
	ObstacleSize   float64
	ObstacleGrowth float64

	// BaseSpawnInterval is the level-1 gap between spawns; SpawnDecrement
	// shortens it per level above 1, floored at MinSpawnInterval.
	BaseSpawnInterval time.Duration
	SpawnDecrement    time.Duration
	MinSpawnInterval  time.Duration

	// Lives is the starting life count.
	Lives int

	// Invincibility is the window after any hit during which further
	// collisions are ignored.
	Invincibility time.Duration

	// LevelUpThreshold is the score per level; MaxLevel caps progression.
	LevelUpThreshold int
	MaxLevel         int

	// BaseScore is awarded per accepted phrase, plus TierBonus per phrase
	// tier and up to ConfidenceBonus scaled by verdict confidence, all
	// multiplied by the combo multiplier.
	BaseScore       int
	TierBonus       int
	ConfidenceBonus float64

	// MaxFrameDelta clamps a single tick's delta so a suspended tab cannot
	// teleport obstacles when frames resume.
	MaxFrameDelta time.Duration
}

// Defaults for [Config]. Speeds and distances are in track units; the track
// is nominally 1000 units long.
const (
	DefaultBaseSpeed         = 150.0
	DefaultSpeedIncrement    = 25.0
	DefaultSpawnX            = 1000.0
	DefaultPlayerX           = 80.0
	DefaultPlayerWidth       = 40.0
	DefaultRevealDistance    = 420.0
	DefaultObstacleSize      = 24.0
	DefaultObstacleGrowth    = 4.0
	DefaultBaseSpawnInterval = 4 * time.Second
	DefaultSpawnDecrement    = 250 * time.Millisecond
	DefaultMinSpawnInterval  = 1500 * time.Millisecond
	DefaultLives             = 3
	DefaultInvincibility     = 1500 * time.Millisecond
	DefaultLevelUpThreshold  = 500
	DefaultMaxLevel          = 10
	DefaultBaseScore         = 100
	DefaultTierBonus         = 20
	DefaultConfidenceBonus   = 50.0
	DefaultMaxFrameDelta     = 100 * time.Millisecond
)

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.BaseSpeed == 0 {
		c.BaseSpeed = DefaultBaseSpeed
	}
	if c.SpeedIncrement == 0 {
		c.SpeedIncrement = DefaultSpeedIncrement
	}
	if c.SpawnX == 0 {
		c.SpawnX = DefaultSpawnX
	}
	if c.PlayerX == 0 {
		c.PlayerX = DefaultPlayerX
	}
	if c.PlayerWidth == 0 {
		c.PlayerWidth = DefaultPlayerWidth
	}
	if c.RevealDistance == 0 {
		c.RevealDistance = DefaultRevealDistance
	}
	if c.ObstacleSize == 0 {
		c.ObstacleSize = DefaultObstacleSize
	}
	if c.ObstacleGrowth == 0 {
		c.ObstacleGrowth = DefaultObstacleGrowth
	}
	if c.BaseSpawnInterval == 0 {
		c.BaseSpawnInterval = DefaultBaseSpawnInterval
	}
	if c.SpawnDecrement == 0 {
		c.SpawnDecrement = DefaultSpawnDecrement
	}
	if c.MinSpawnInterval == 0 {
		c.MinSpawnInterval = DefaultMinSpawnInterval
	}
	if c.Lives == 0 {
		c.Lives = DefaultLives
	}
	if c.Invincibility == 0 {
		c.Invincibility = DefaultInvincibility
	}
	if c.LevelUpThreshold == 0 {
		c.LevelUpThreshold = DefaultLevelUpThreshold
	}
	if c.MaxLevel == 0 {
		c.MaxLevel = DefaultMaxLevel
	}
	if c.BaseScore == 0 {
		c.BaseScore = DefaultBaseScore
	}
	if c.TierBonus == 0 {
		c.TierBonus = DefaultTierBonus
	}
	if c.ConfidenceBonus == 0 {
		c.ConfidenceBonus = DefaultConfidenceBonus
	}
	if c.MaxFrameDelta == 0 {
		c.MaxFrameDelta = DefaultMaxFrameDelta
	}
	return c
}
