// Package games hosts the word puzzles. Connections is the only one so far:
// sixteen clues hide four named groups of four.
package games

import (
	"errors"

	"github.com/samber/lo"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrGameExists     = errors.New("a game with this name already exists")
	ErrInvalidName    = errors.New("puzzle name needs at least one letter or digit")
	ErrDuplicateClue  = errors.New("every clue must be distinct")
	ErrGuessMalformed = errors.New("a guess is four distinct clues")
)

const (
	groupCount = 4
	groupSize  = 4
)

type Category struct {
	Name  string   `json:"category_name" validate:"required,max=100"`
	Clues []string `json:"category_clues" validate:"len=4,dive,required,max=100"`
}

type CreateConnectionsRequest struct {
	PuzzleName string     `json:"puzzle_name" validate:"required,max=100"`
	Categories []Category `json:"connection_categories" validate:"len=4,dive"`
}

// Connections is the stored puzzle, answers included. Only its author's
// tooling should ever see it whole.
type Connections struct {
	ID         string     `json:"id"`
	Slug       string     `json:"slug"`
	PuzzleName string     `json:"puzzle_name"`
	AuthorID   string     `json:"author_id"`
	CreatedAt  int64      `json:"creation_datetime"`
	Categories []Category `json:"connection_categories"`
}

// Summary is a list entry without clues.
type Summary struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	PuzzleName string `json:"puzzle_name"`
	AuthorID   string `json:"author_id"`
	CreatedAt  int64  `json:"creation_datetime"`
}

// Playable hands out the clues shuffled and without their groups.
type Playable struct {
	ID             string   `json:"id"`
	Slug           string   `json:"slug"`
	PuzzleName     string   `json:"puzzle_name"`
	AuthorID       string   `json:"author_id"`
	CreatedAt      int64    `json:"creation_datetime"`
	ScrambledClues []string `json:"scrambled_clues"`
}

type SolveResult struct {
	RowName *string `json:"row_name"`
	Correct bool    `json:"correct_guess"`
}

func (g Connections) Summary() Summary {
	return Summary{ID: g.ID, Slug: g.Slug, PuzzleName: g.PuzzleName, AuthorID: g.AuthorID, CreatedAt: g.CreatedAt}
}

// Solve reports the group containing every clue of guess, if there is one.
func (g Connections) Solve(guess []string) SolveResult {
	for _, c := range g.Categories {
		if lo.Every(c.Clues, guess) {
			name := c.Name
			return SolveResult{RowName: &name, Correct: true}
		}
	}
	return SolveResult{}
}
