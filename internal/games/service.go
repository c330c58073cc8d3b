package games

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Service struct {
	repo     Store
	validate *validator.Validate
	now      func() time.Time
	shuffle  func([]string) []string
}

func NewService(repo Store) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		shuffle:  func(clues []string) []string { return lo.Shuffle(clues) },
	}
}

func (s *Service) CreateConnections(ctx context.Context, authorID string, req *CreateConnectionsRequest) (*Connections, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	clues := allClues(req.Categories)
	if len(lo.Uniq(clues)) != len(clues) {
		return nil, ErrDuplicateClue
	}
	slug := Slugify(req.PuzzleName)
	if slug == "" {
		return nil, ErrInvalidName
	}

	return s.repo.CreateConnections(ctx, &Connections{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Slug:       slug,
		PuzzleName: req.PuzzleName,
		AuthorID:   authorID,
		CreatedAt:  s.now().Unix(),
		Categories: req.Categories,
	})
}

func (s *Service) ListConnections(ctx context.Context, userID string, mine bool) ([]Summary, error) {
	games, err := s.repo.ListConnections(ctx, userID, mine)
	if err != nil {
		return nil, err
	}
	return lo.Map(games, func(g Connections, _ int) Summary { return g.Summary() }), nil
}

// Play returns the puzzle with its sixteen clues in a fresh random order.
func (s *Service) Play(ctx context.Context, slug string) (*Playable, error) {
	g, err := s.repo.GetConnectionsBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return &Playable{
		ID:             g.ID,
		Slug:           g.Slug,
		PuzzleName:     g.PuzzleName,
		AuthorID:       g.AuthorID,
		CreatedAt:      g.CreatedAt,
		ScrambledClues: s.shuffle(allClues(g.Categories)),
	}, nil
}

func (s *Service) TrySolve(ctx context.Context, slug string, guess []string) (*SolveResult, error) {
	if err := s.validate.Var(guess, "len=4,unique,dive,required"); err != nil {
		return nil, ErrGuessMalformed
	}
	g, err := s.repo.GetConnectionsBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	res := g.Solve(guess)
	return &res, nil
}

// Slugify lowercases name and keeps ASCII letters and digits, joining the
// runs between them with single dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

func allClues(categories []Category) []string {
	clues := make([]string, 0, groupCount*groupSize)
	for _, c := range categories {
		clues = append(clues, c.Clues...)
	}
	return clues
}
