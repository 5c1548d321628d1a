package arena

// Physics constants. Speeds are arena units per second, masses are areas.
const (
	DefaultSeed = 42

	// TickDt is the simulated time of one engine tick (60 ticks per second).
	TickDt = 1.0 / 60

	MassAreaRatio = 1.0
	StartMass     = 40.0
	PelletMass    = 1.0
	FoodMass      = 10.0
	VirusMass     = 100.0

	CellMinMass  = 10.0
	CellMaxSpeed = 200.0

	SplitMinimum = 35.0
	SplitSpeed   = 300.0
	SplitDecel   = 400.0

	FeedMinimum = 35.0
	FoodSpeed   = 100.0
	FoodDecel   = 80.0

	// RecombineTicks is 30 seconds of game time.
	RecombineTicks = 30 * 60

	// A cell must be EatMargin times heavier than another cell to eat it.
	EatMargin = 1.1

	// A cell popped by a virus breaks into pieces of at least PopPieceMass.
	PopPieceMass = 25.0
	PopMaxPieces = 8

	PlayerCellLimit = 16

	// ActionScale converts a [-1, 1] action target into a world offset from
	// the player's center.
	ActionScale = 10.0

	// ShyRadius is how close a threat must be before a shy bot runs.
	ShyRadius = 50.0

	// RAMFoodLimit caps the ejected-food slots of the ram vector.
	RAMFoodLimit = 64
)

// Settings configures a World.
type Settings struct {
	Width       float64
	Height      float64
	NumPellets  int
	NumViruses  int
	PelletRegen bool
}
