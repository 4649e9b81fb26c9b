package catalog

// Default returns the built-in puzzle set used when no catalog file is
// configured. Grids are 3x3 symbol sheets flattened row-major; the
// answer is an index into that flat list.
func Default() *Catalog {
	c, err := New(defaultPuzzles)
	if err != nil {
		// The built-in set is validated by tests; a bad entry here is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return c
}

var defaultPuzzles = []Puzzle{
	{
		ID:     "vault-dials",
		Grid:   []string{"moon", "key", "gem", "bell", "crown", "coin", "star", "lock", "mask"},
		Answer: 4,
		Clues: []string{
			"it is something you can wear",
			"it is not in the top row",
			"it is not in the bottom row",
			"it sits next to the coin",
		},
	},
	{
		ID:     "wire-panel",
		Grid:   []string{"red", "blue", "green", "yellow", "white", "black", "orange", "purple", "gray"},
		Answer: 2,
		Clues: []string{
			"it is a color of grass",
			"it is in the top row",
			"it is not a primary color of light paint kits",
			"it sits right of blue",
		},
	},
	{
		ID:     "guard-rota",
		Grid:   []string{"owl", "fox", "wolf", "bear", "crow", "rat", "cat", "dog", "hawk"},
		Answer: 5,
		Clues: []string{
			"it is the smallest animal on the sheet",
			"it is in the middle row",
			"it does not fly",
			"it sits next to the crow",
		},
	},
	{
		ID:     "floor-grid",
		Grid:   []string{"north", "east", "south", "west", "center", "roof", "cellar", "stair", "hall"},
		Answer: 6,
		Clues: []string{
			"it is below ground",
			"it is not a compass direction",
			"it is in the bottom row",
		},
	},
	{
		ID:     "camera-loop",
		Grid:   []string{"lobby", "vault", "dock", "office", "garage", "yard", "gate", "roof", "lab"},
		Answer: 1,
		Clues: []string{
			"it is the room with the money",
			"it is in the top row",
			"it is indoors",
			"it sits between the lobby and the dock",
		},
	},
	{
		ID:     "keypad-ghost",
		Grid:   []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine"},
		Answer: 7,
		Clues: []string{
			"it is an even number",
			"it is greater than five",
			"it is not divisible by three",
		},
	},
}
