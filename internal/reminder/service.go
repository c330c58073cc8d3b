package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Service struct {
	repo     Store
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Store) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

func (s *Service) CreateCategory(ctx context.Context, userID string, req *CreateCategoryRequest) (*Category, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	return s.repo.CreateCategory(ctx, &Category{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Slug:   req.Slug,
		Name:   req.Name,
		UserID: userID,
	})
}

func (s *Service) ListCategories(ctx context.Context, userID string) ([]Category, error) {
	return s.repo.ListCategories(ctx, userID)
}

func (s *Service) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	return s.repo.DeleteCategory(ctx, categoryID, userID)
}

func (s *Service) CreateReminder(ctx context.Context, userID string, req *CreateReminderRequest) (*Reminder, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(req.Priority))
	}
	if err := s.checkCategories(ctx, userID, req.Categories); err != nil {
		return nil, err
	}

	return s.repo.CreateReminder(ctx, &Reminder{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Name:        req.Name,
		Description: req.Description,
		Categories:  lo.Ternary(req.Categories == nil, []string{}, req.Categories),
		Priority:    req.Priority,
		UserID:      userID,
		DateTime:    s.now().Unix(),
	})
}

func (s *Service) GetReminder(ctx context.Context, userID, reminderID string) (*Reminder, error) {
	return s.repo.GetReminder(ctx, reminderID, userID)
}

func (s *Service) ListReminders(ctx context.Context, filter ListFilter) ([]Reminder, error) {
	return s.repo.ListReminders(ctx, filter)
}

func (s *Service) UpdateReminder(ctx context.Context, userID, reminderID string, req *UpdateReminderRequest) (*Reminder, error) {
	if req.Empty() {
		return nil, ErrEmptyUpdate
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(*req.Priority))
	}
	if req.Categories != nil {
		if err := s.checkCategories(ctx, userID, *req.Categories); err != nil {
			return nil, err
		}
	}
	return s.repo.UpdateReminder(ctx, reminderID, userID, *req)
}

func (s *Service) DeleteReminder(ctx context.Context, userID, reminderID string) error {
	return s.repo.DeleteReminder(ctx, reminderID, userID)
}

// checkCategories allows only the user's own categories on a reminder.
func (s *Service) checkCategories(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	owned, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return err
	}
	known := lo.SliceToMap(owned, func(c Category) (string, struct{}) { return c.ID, struct{}{} })
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("category %q: %w", id, ErrUnknownCategory)
		}
	}
	return nil
}
