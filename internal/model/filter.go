package model

import "time"

// SelectionMode is either "all" or "specific".
type SelectionMode string

const (
	SelectAll      SelectionMode = "all"
	SelectSpecific SelectionMode = "specific"
)

// Selection is an allow-list that is ignored in "all" mode.
type Selection struct {
	Mode   SelectionMode `validate:"omitempty,selection_mode"`
	Values []string      `validate:"required_if=Mode specific"`
}

// Allows reports whether v passes the selection.
func (s Selection) Allows(v string) bool {
	if s.Mode != SelectSpecific {
		return true
	}
	for _, x := range s.Values {
		if x == v {
			return true
		}
	}
	return false
}

// FilterSpec describes one export request.
type FilterSpec struct {
	// StartDate and EndDate bound the entry date inclusively; nil is open.
	StartDate *time.Time
	EndDate   *time.Time `validate:"omitempty,date_not_before=StartDate"`

	IncludeBehavior bool
	IncludeQuiz     bool
	IncludeHomework bool

	Students      Selection
	BehaviorItems Selection
	QuizItems     Selection
	HomeworkItems Selection

	SeparateSheets     bool
	IncludeMaster      bool
	IncludeSummaries   bool
	IncludeStudentInfo bool
}

// DefaultFilterSpec includes everything with every sheet kind enabled.
func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		IncludeBehavior:    true,
		IncludeQuiz:        true,
		IncludeHomework:    true,
		Students:           Selection{Mode: SelectAll},
		BehaviorItems:      Selection{Mode: SelectAll},
		QuizItems:          Selection{Mode: SelectAll},
		HomeworkItems:      Selection{Mode: SelectAll},
		SeparateSheets:     true,
		IncludeMaster:      true,
		IncludeSummaries:   true,
		IncludeStudentInfo: true,
	}
}

// Includes reports whether entries of type t are in scope.
func (f FilterSpec) Includes(t LogType) bool {
	switch {
	case t == TypeBehavior:
		return f.IncludeBehavior
	case t == TypeQuiz:
		return f.IncludeQuiz
	case t.IsHomework():
		return f.IncludeHomework
	}
	return false
}

// ItemSelection returns the allow-list that applies to entries of type t.
func (f FilterSpec) ItemSelection(t LogType) Selection {
	switch {
	case t == TypeQuiz:
		return f.QuizItems
	case t.IsHomework():
		return f.HomeworkItems
	}
	return f.BehaviorItems
}
