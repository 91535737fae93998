package domain

import "fmt"

// Task priorities as produced by the extraction prompt.
const (
	PriorityUrgent = "urgent"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// Task categories as produced by the extraction prompt.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryHealth   = "health"
	CategoryShopping = "shopping"
	CategoryCalls    = "calls"
	CategoryOther    = "other"
)

// Task is a single action item extracted from a voice memo transcript. Tasks
// are embedded in a Reminder and never persisted on their own.
type Task struct {
	Description   string `json:"description"`
	SuggestedDate string `json:"suggestedDate,omitempty"`
	Priority      string `json:"priority"`
	Category      string `json:"category"`
}

// Validate reports whether the task carries a description and recognised
// priority/category values.
func (t Task) Validate() error {
	if t.Description == "" {
		return fmt.Errorf("task description is required")
	}
	if !ValidPriority(t.Priority) {
		return fmt.Errorf("unknown task priority %q", t.Priority)
	}
	if !ValidCategory(t.Category) {
		return fmt.Errorf("unknown task category %q", t.Category)
	}
	return nil
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityUrgent, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ValidCategory(c string) bool {
	switch c {
	case CategoryWork, CategoryPersonal, CategoryHealth, CategoryShopping, CategoryCalls, CategoryOther:
		return true
	}
	return false
}
