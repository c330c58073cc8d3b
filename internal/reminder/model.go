package reminder

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrCategoryExists   = errors.New("category already exists")
	ErrCategoryInUse    = errors.New("category is used by a reminder")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrEmptyUpdate      = errors.New("update changes nothing")
)

type Priority int

const (
	Low Priority = iota
	Medium
	High
	VeryHigh
)

var priorityNames = []string{"Low", "Medium", "High", "VeryHigh"}

func (p Priority) Valid() bool {
	return p >= Low && p <= VeryHigh
}

func (p Priority) String() string {
	if !p.Valid() {
		return "Priority(" + strconv.Itoa(int(p)) + ")"
	}
	return priorityNames[p]
}

func (p Priority) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unsupported priority %d", int(p))
	}
	return json.Marshal(p.String())
}

// UnmarshalJSON takes either the name ("High") or its number (2).
func (p *Priority) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !Priority(n).Valid() {
			return fmt.Errorf("unsupported priority %d", n)
		}
		*p = Priority(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("priority must be a number or a name: %w", err)
	}
	i := lo.IndexOf(priorityNames, s)
	if i < 0 {
		return fmt.Errorf("unsupported priority %q", s)
	}
	*p = Priority(i)
	return nil
}

type Category struct {
	ID     string `json:"id"`
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

type Reminder struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"` // category IDs
	Priority    Priority `json:"priority"`
	UserID      string   `json:"user_id"`
	DateTime    int64    `json:"date_time"` // unix seconds
}

type CreateCategoryRequest struct {
	Slug string `json:"slug" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=100"`
}

type CreateReminderRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Categories  []string `json:"categories" validate:"unique,dive,required"`
	Priority    Priority `json:"priority"`
}

// UpdateReminderRequest changes only the fields that are present. A present
// but empty Categories clears them.
type UpdateReminderRequest struct {
	Name        *string   `json:"name" validate:"omitnil,min=1,max=200"`
	Description *string   `json:"description" validate:"omitnil,max=2000"`
	Categories  *[]string `json:"categories" validate:"omitnil,unique,dive,required"`
	Priority    *Priority `json:"priority"`
}

func (u UpdateReminderRequest) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Categories == nil && u.Priority == nil
}

// ListFilter narrows ListReminders. An empty CategoryID means every reminder.
type ListFilter struct {
	UserID     string
	CategoryID string
}
