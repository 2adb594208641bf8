package model

// Well-known mark type identifiers referenced by the scoring rules.
const (
	MarkCorrect      = "mark_correct"
	HomeworkEffort   = "hmark_effort"
	HomeworkComplete = "hmark_complete"
)

// MarkKind selects which ordered mark type list a MarkType belongs to.
type MarkKind string

const (
	MarkKindQuiz     MarkKind = "quiz"
	MarkKindHomework MarkKind = "homework"
)

// Student represents a pupil on the seating chart.
type Student struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Nickname  string `json:"nickname,omitempty"`
	Gender    string `json:"gender,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
}

// DisplayName returns the full name used for matching and summaries.
// Students without a stored full name get one derived from their parts.
func (s Student) DisplayName() string {
	if s.FullName != "" {
		return s.FullName
	}
	return ComposeFullName(s.FirstName, s.Nickname, s.LastName)
}

// ComposeFullName builds the `First "Nick" Last` display form.
func ComposeFullName(first, nickname, last string) string {
	if nickname != "" {
		return first + " \"" + nickname + "\" " + last
	}
	return first + " " + last
}

// Group is a named student group.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MarkType is a configured scoring dimension for quizzes or homework.
type MarkType struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	DefaultPoints      float64 `json:"default_points"`
	ContributesToTotal bool    `json:"contributes_to_total"`
	IsExtraCredit      bool    `json:"is_extra_credit"`
}

// SessionType is a homework category tracked in yes/no live sessions.
type SessionType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DefaultQuizMarkTypes are seeded into a fresh store.
func DefaultQuizMarkTypes() []MarkType {
	return []MarkType{
		{ID: MarkCorrect, Name: "Correct", DefaultPoints: 1, ContributesToTotal: true},
		{ID: "mark_incorrect", Name: "Incorrect", DefaultPoints: 0, ContributesToTotal: true},
		{ID: "mark_partial", Name: "Partial Credit", DefaultPoints: 0.5, ContributesToTotal: true},
		{ID: "extra_credit", Name: "Bonus", DefaultPoints: 1, IsExtraCredit: true},
	}
}

// DefaultHomeworkMarkTypes are seeded into a fresh store.
func DefaultHomeworkMarkTypes() []MarkType {
	return []MarkType{
		{ID: HomeworkComplete, Name: "Complete", DefaultPoints: 10, ContributesToTotal: true},
		{ID: "hmark_incomplete", Name: "Incomplete", DefaultPoints: 5, ContributesToTotal: true},
		{ID: "hmark_notdone", Name: "Not Done", DefaultPoints: 0, ContributesToTotal: true},
		{ID: HomeworkEffort, Name: "Effort", DefaultPoints: 0},
	}
}

// Snapshot is the read-only state an export or import works against.
type Snapshot struct {
	Entries           []LogEntry
	Students          map[string]Student
	Groups            map[string]Group
	GroupsEnabled     bool
	QuizMarkTypes     []MarkType
	HomeworkMarkTypes []MarkType
	SessionTypes      []SessionType
}

// Student looks up a student, reporting whether it exists.
func (s *Snapshot) Student(id string) (Student, bool) {
	st, ok := s.Students[id]
	return st, ok
}

// GroupName returns the display name of a student's group, or "" when
// groups are disabled or the group is unknown.
func (s *Snapshot) GroupName(st Student) string {
	if !s.GroupsEnabled || st.GroupID == "" {
		return ""
	}
	return s.Groups[st.GroupID].Name
}
