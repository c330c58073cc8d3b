package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// fakeStore mirrors the Repository's ownership and referential rules.
type fakeStore struct {
	mu         sync.Mutex
	categories map[string]Category
	reminders  map[string]Reminder
}

func newFakeStore() *fakeStore {
	return &fakeStore{categories: map[string]Category{}, reminders: map[string]Reminder{}}
}

func (f *fakeStore) CreateCategory(_ context.Context, c *Category) (*Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.categories {
		if existing.UserID == c.UserID && existing.Slug == c.Slug {
			return nil, fmt.Errorf("slug %q: %w", c.Slug, ErrCategoryExists)
		}
	}
	f.categories[c.ID] = *c
	return c, nil
}

func (f *fakeStore) ListCategories(_ context.Context, userID string) ([]Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := lo.Filter(lo.Values(f.categories), func(c Category, _ int) bool { return c.UserID == userID })
	slices.SortFunc(out, func(a, b Category) int { return strings.Compare(a.Slug, b.Slug) })
	return out, nil
}

func (f *fakeStore) DeleteCategory(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok || c.UserID != userID {
		return fmt.Errorf("category %q: %w", id, ErrCategoryNotFound)
	}
	for _, r := range f.reminders {
		if lo.Contains(r.Categories, id) {
			return fmt.Errorf("category %q: %w", id, ErrCategoryInUse)
		}
	}
	delete(f.categories, id)
	return nil
}

func (f *fakeStore) CreateReminder(_ context.Context, r *Reminder) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *r
	stored.Categories = sortedIDs(r.Categories)
	f.reminders[r.ID] = stored
	return &stored, nil
}

func (f *fakeStore) GetReminder(_ context.Context, id, userID string) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.UserID != userID {
		return nil, fmt.Errorf("reminder %q: %w", id, ErrReminderNotFound)
	}
	return &r, nil
}

func (f *fakeStore) ListReminders(_ context.Context, filter ListFilter) ([]Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := lo.Filter(lo.Values(f.reminders), func(r Reminder, _ int) bool {
		return r.UserID == filter.UserID && (filter.CategoryID == "" || lo.Contains(r.Categories, filter.CategoryID))
	})
	slices.SortFunc(out, func(a, b Reminder) int {
		if a.DateTime != b.DateTime {
			return int(b.DateTime - a.DateTime)
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (f *fakeStore) UpdateReminder(_ context.Context, id, userID string, upd UpdateReminderRequest) (*Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.UserID != userID {
		return nil, fmt.Errorf("reminder %q: %w", id, ErrReminderNotFound)
	}
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Priority != nil {
		r.Priority = *upd.Priority
	}
	if upd.Categories != nil {
		r.Categories = sortedIDs(*upd.Categories)
	}
	f.reminders[id] = r
	return &r, nil
}

func (f *fakeStore) DeleteReminder(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok || r.UserID != userID {
		return fmt.Errorf("reminder %q: %w", id, ErrReminderNotFound)
	}
	delete(f.reminders, id)
	return nil
}

func sortedIDs(ids []string) []string {
	out := append([]string{}, ids...)
	slices.Sort(out)
	return out
}

func TestPriority_JSON(t *testing.T) {
	req := require.New(t)

	out, err := json.Marshal(VeryHigh)
	req.NoError(err)
	req.JSONEq(`"VeryHigh"`, string(out))

	var p Priority
	req.NoError(json.Unmarshal([]byte(`"Medium"`), &p))
	req.Equal(Medium, p)
	req.NoError(json.Unmarshal([]byte(`2`), &p))
	req.Equal(High, p)

	req.Error(json.Unmarshal([]byte(`4`), &p))
	req.Error(json.Unmarshal([]byte(`"Urgent"`), &p))
	_, err = json.Marshal(Priority(9))
	req.Error(err)
}

func TestCategories(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewService(newFakeStore())

	home, err := s.CreateCategory(ctx, "alice", &CreateCategoryRequest{Slug: "home", Name: "Home"})
	req.NoError(err)
	req.NotEmpty(home.ID)
	req.Equal("alice", home.UserID)

	_, err = s.CreateCategory(ctx, "alice", &CreateCategoryRequest{Slug: "home", Name: "Again"})
	req.ErrorIs(err, ErrCategoryExists)
	// Slugs are per user.
	_, err = s.CreateCategory(ctx, "bob", &CreateCategoryRequest{Slug: "home", Name: "Bob's"})
	req.NoError(err)

	var verrs validator.ValidationErrors
	_, err = s.CreateCategory(ctx, "alice", &CreateCategoryRequest{Name: "No slug"})
	req.ErrorAs(err, &verrs)

	mine, err := s.ListCategories(ctx, "alice")
	req.NoError(err)
	req.Equal([]Category{*home}, mine)

	req.ErrorIs(s.DeleteCategory(ctx, "bob", home.ID), ErrCategoryNotFound)
	req.NoError(s.DeleteCategory(ctx, "alice", home.ID))
	req.ErrorIs(s.DeleteCategory(ctx, "alice", home.ID), ErrCategoryNotFound)
}

func TestReminders_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewService(newFakeStore())
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	work, err := s.CreateCategory(ctx, "alice", &CreateCategoryRequest{Slug: "work", Name: "Work"})
	req.NoError(err)

	r, err := s.CreateReminder(ctx, "alice", &CreateReminderRequest{
		Name:        "Renew certificate",
		Description: "before it lapses",
		Categories:  []string{work.ID},
		Priority:    High,
	})
	req.NoError(err)
	req.Equal(Reminder{
		ID:          r.ID,
		Name:        "Renew certificate",
		Description: "before it lapses",
		Categories:  []string{work.ID},
		Priority:    High,
		UserID:      "alice",
		DateTime:    now.Unix(),
	}, *r)

	// A category in use cannot be deleted.
	req.ErrorIs(s.DeleteCategory(ctx, "alice", work.ID), ErrCategoryInUse)

	got, err := s.GetReminder(ctx, "alice", r.ID)
	req.NoError(err)
	req.Equal(r, got)
	_, err = s.GetReminder(ctx, "bob", r.ID)
	req.ErrorIs(err, ErrReminderNotFound)

	name, low, none := "Renew TLS", Low, []string{}
	updated, err := s.UpdateReminder(ctx, "alice", r.ID, &UpdateReminderRequest{Name: &name, Priority: &low, Categories: &none})
	req.NoError(err)
	req.Equal("Renew TLS", updated.Name)
	req.Equal("before it lapses", updated.Description)
	req.Equal(Low, updated.Priority)
	req.Empty(updated.Categories)

	_, err = s.UpdateReminder(ctx, "bob", r.ID, &UpdateReminderRequest{Name: &name})
	req.ErrorIs(err, ErrReminderNotFound)

	req.NoError(s.DeleteCategory(ctx, "alice", work.ID))
	req.ErrorIs(s.DeleteReminder(ctx, "bob", r.ID), ErrReminderNotFound)
	req.NoError(s.DeleteReminder(ctx, "alice", r.ID))

	list, err := s.ListReminders(ctx, ListFilter{UserID: "alice"})
	req.NoError(err)
	req.Empty(list)
}

func TestReminders_Rejects(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewService(newFakeStore())

	bobs, err := s.CreateCategory(ctx, "bob", &CreateCategoryRequest{Slug: "private", Name: "Private"})
	req.NoError(err)

	var verrs validator.ValidationErrors
	_, err = s.CreateReminder(ctx, "alice", &CreateReminderRequest{})
	req.ErrorAs(err, &verrs)
	_, err = s.CreateReminder(ctx, "alice", &CreateReminderRequest{Name: "x", Categories: []string{"a", "a"}})
	req.ErrorAs(err, &verrs)
	_, err = s.CreateReminder(ctx, "alice", &CreateReminderRequest{Name: "x", Priority: Priority(7)})
	req.ErrorIs(err, ErrInvalidPriority)

	// Another user's category is as good as missing.
	_, err = s.CreateReminder(ctx, "alice", &CreateReminderRequest{Name: "x", Categories: []string{bobs.ID}})
	req.ErrorIs(err, ErrUnknownCategory)

	r, err := s.CreateReminder(ctx, "alice", &CreateReminderRequest{Name: "x"})
	req.NoError(err)
	req.NotNil(r.Categories)

	_, err = s.UpdateReminder(ctx, "alice", r.ID, &UpdateReminderRequest{})
	req.ErrorIs(err, ErrEmptyUpdate)
	empty := ""
	_, err = s.UpdateReminder(ctx, "alice", r.ID, &UpdateReminderRequest{Name: &empty})
	req.ErrorAs(err, &verrs)
	_, err = s.UpdateReminder(ctx, "alice", r.ID, &UpdateReminderRequest{Categories: &[]string{bobs.ID}})
	req.ErrorIs(err, ErrUnknownCategory)
}

func TestListReminders_FilterAndOrder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewService(newFakeStore())
	tick := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { tick = tick.Add(time.Second); return tick }

	work, err := s.CreateCategory(ctx, "alice", &CreateCategoryRequest{Slug: "work", Name: "Work"})
	req.NoError(err)
	first, err := s.CreateReminder(ctx, "alice", &CreateReminderRequest{Name: "first", Categories: []string{work.ID}})
	req.NoError(err)
	second, err := s.CreateReminder(ctx, "alice", &CreateReminderRequest{Name: "second"})
	req.NoError(err)
	_, err = s.CreateReminder(ctx, "bob", &CreateReminderRequest{Name: "bob's"})
	req.NoError(err)

	all, err := s.ListReminders(ctx, ListFilter{UserID: "alice"})
	req.NoError(err)
	req.Equal([]string{second.ID, first.ID}, lo.Map(all, func(r Reminder, _ int) string { return r.ID }))

	tagged, err := s.ListReminders(ctx, ListFilter{UserID: "alice", CategoryID: work.ID})
	req.NoError(err)
	req.Equal([]Reminder{*first}, tagged)
}
