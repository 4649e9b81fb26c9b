package catalog

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// Puzzle is one entry of the static deduction-puzzle catalog: a grid of
// symbols, the index of the correct symbol, and a set of true clues that
// narrow the grid down to that symbol.
type Puzzle struct {
	ID     string   `yaml:"id"`
	Grid   []string `yaml:"grid"`
	Answer int      `yaml:"answer"`
	Clues  []string `yaml:"clues"`
}

// Assignment is the per-squad slice of a puzzle: the puzzle itself plus
// one clue per member position. When the clue pool is smaller than the
// squad, clues repeat cyclically.
type Assignment struct {
	PuzzleID string
	Grid     []string
	Answer   int
	Clues    []string
}

// Catalog is a read-only collection of puzzles. The session core only
// selects from it and reads its fields.
type Catalog struct {
	puzzles []Puzzle
}

// Load reads a puzzle catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var doc struct {
		Puzzles []Puzzle `yaml:"puzzles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	return New(doc.Puzzles)
}

// New builds a catalog from a puzzle list, validating every entry.
func New(puzzles []Puzzle) (*Catalog, error) {
	if len(puzzles) == 0 {
		return nil, fmt.Errorf("catalog has no puzzles")
	}
	for i, p := range puzzles {
		if p.ID == "" {
			return nil, fmt.Errorf("puzzle %d: missing id", i)
		}
		if len(p.Grid) == 0 {
			return nil, fmt.Errorf("puzzle %s: empty grid", p.ID)
		}
		if p.Answer < 0 || p.Answer >= len(p.Grid) {
			return nil, fmt.Errorf("puzzle %s: answer %d out of range [0,%d)", p.ID, p.Answer, len(p.Grid))
		}
		if len(p.Clues) == 0 {
			return nil, fmt.Errorf("puzzle %s: no clues", p.ID)
		}
	}
	return &Catalog{puzzles: puzzles}, nil
}

// Len returns the number of puzzles in the catalog.
func (c *Catalog) Len() int {
	return len(c.puzzles)
}

// Pick selects one puzzle uniformly at random.
func (c *Catalog) Pick(rng *rand.Rand) Puzzle {
	return c.puzzles[rng.Intn(len(c.puzzles))]
}

// Assign picks a puzzle and distributes n clues across member positions.
// Clues are handed out cyclically when the pool is smaller than n, so
// large squads can see the same clue twice.
func (c *Catalog) Assign(rng *rand.Rand, n int) Assignment {
	p := c.Pick(rng)
	clues := make([]string, n)
	for i := range clues {
		clues[i] = p.Clues[i%len(p.Clues)]
	}
	return Assignment{
		PuzzleID: p.ID,
		Grid:     append([]string(nil), p.Grid...),
		Answer:   p.Answer,
		Clues:    clues,
	}
}
