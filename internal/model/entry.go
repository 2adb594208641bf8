package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LogType is the tag carried by every log entry.
type LogType string

const (
	TypeBehavior      LogType = "behavior"
	TypeQuiz          LogType = "quiz"
	TypeHomework      LogType = "homework"
	TypeSessionYesNo  LogType = "homework_session_yesno"
	TypeSessionSelect LogType = "homework_session_select"
)

// IsHomework reports whether t is plain homework or one of the session modes.
func (t LogType) IsHomework() bool {
	return t == TypeHomework || t == TypeSessionYesNo || t == TypeSessionSelect
}

// Label is the human-readable form written to spreadsheets.
func (t LogType) Label() string {
	switch t {
	case TypeBehavior:
		return "Behavior"
	case TypeQuiz:
		return "Quiz"
	case TypeHomework:
		return "Homework"
	case TypeSessionYesNo:
		return "Homework Session (Yes/No)"
	case TypeSessionSelect:
		return "Homework Session (Select)"
	}
	return string(t)
}

// ParseLogType accepts the stored tags and the short legacy aliases.
func ParseLogType(s string) (LogType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "behavior", "":
		return TypeBehavior, nil
	case "quiz":
		return TypeQuiz, nil
	case "homework":
		return TypeHomework, nil
	case "homework_session_yesno", "homework_session_y":
		return TypeSessionYesNo, nil
	case "homework_session_select", "homework_session_s":
		return TypeSessionSelect, nil
	}
	return "", fmt.Errorf("unknown log type %q", s)
}

// ErrInvalidEntry is returned by LogEntry.Validate.
var ErrInvalidEntry = errors.New("invalid log entry")

// Detail is the type-specific part of a log entry. The concrete types are
// BehaviorDetail, QuizDetail, HomeworkDetail, YesNoSessionDetail and
// SelectSessionDetail.
type Detail interface {
	logType() LogType
}

// BehaviorDetail carries nothing beyond the shared entry fields.
type BehaviorDetail struct{}

// ScoreDetails is the tally recorded by a live quiz session.
type ScoreDetails struct {
	Correct    int `json:"correct"`
	TotalAsked int `json:"total_asked"`
}

// QuizDetail holds either a per-mark-type tally (Marks) or a live session
// score (Score), never both.
type QuizDetail struct {
	NumQuestions int
	Marks        map[string]float64
	Score        *ScoreDetails
}

// HomeworkDetail is a manually graded homework log.
type HomeworkDetail struct {
	NumItems *int
	Marks    map[string]MarkValue
}

// YesNoSessionDetail maps session-type ids to "yes" or "no".
type YesNoSessionDetail struct {
	Statuses map[string]string
}

// SelectSessionDetail lists the options ticked in a multi-select session.
type SelectSessionDetail struct {
	Selected []string
}

func (BehaviorDetail) logType() LogType      { return TypeBehavior }
func (QuizDetail) logType() LogType          { return TypeQuiz }
func (HomeworkDetail) logType() LogType      { return TypeHomework }
func (YesNoSessionDetail) logType() LogType  { return TypeSessionYesNo }
func (SelectSessionDetail) logType() LogType { return TypeSessionSelect }

// LogEntry is one behavioral or academic event.
type LogEntry struct {
	ID        string
	Timestamp string
	StudentID string
	// Item is the behavior, quiz or homework name.
	Item    string
	Comment string
	DayName string
	Detail  Detail
}

// Type returns the entry's tag, derived from its detail.
func (e LogEntry) Type() LogType {
	if e.Detail == nil {
		return TypeBehavior
	}
	return e.Detail.logType()
}

// Day returns the stored weekday name, or the weekday of the timestamp.
func (e LogEntry) Day() string {
	if e.DayName != "" {
		return e.DayName
	}
	t, err := ParseTimestamp(e.Timestamp)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

// NumItems returns the question or item count, if the entry has one.
func (e LogEntry) NumItems() (int, bool) {
	switch d := e.Detail.(type) {
	case QuizDetail:
		return d.NumQuestions, true
	case HomeworkDetail:
		if d.NumItems != nil {
			return *d.NumItems, true
		}
	case SelectSessionDetail:
		return len(d.Selected), true
	}
	return 0, false
}

// Validate checks the per-type invariants.
func (e LogEntry) Validate() error {
	if strings.TrimSpace(e.StudentID) == "" {
		return fmt.Errorf("%w: missing student id", ErrInvalidEntry)
	}
	if e.Timestamp == "" {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEntry)
	}
	switch d := e.Detail.(type) {
	case nil:
		return fmt.Errorf("%w: missing detail", ErrInvalidEntry)
	case QuizDetail:
		if (d.Marks == nil) == (d.Score == nil) {
			return fmt.Errorf("%w: quiz needs exactly one of marks or score details", ErrInvalidEntry)
		}
	case YesNoSessionDetail:
		for id, st := range d.Statuses {
			if s := strings.ToLower(st); s != "yes" && s != "no" {
				return fmt.Errorf("%w: session type %s has status %q", ErrInvalidEntry, id, st)
			}
		}
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 forms log entries are stored with.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// FormatTimestamp renders t the way new entries are stored.
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05")
}

// MarkValue is a homework mark: either a point value or a categorical label.
type MarkValue struct {
	Number   float64
	Text     string
	IsNumber bool
}

// Points returns a numeric mark.
func Points(v float64) MarkValue { return MarkValue{Number: v, IsNumber: true} }

// Label returns a categorical mark.
func Label(s string) MarkValue { return MarkValue{Text: s} }

// IsZero reports whether the mark is absent.
func (v MarkValue) IsZero() bool { return !v.IsNumber && v.Text == "" }

// Cell returns the value as written into a spreadsheet cell.
func (v MarkValue) Cell() any {
	if v.IsNumber {
		return v.Number
	}
	return v.Text
}

func (v MarkValue) String() string {
	if v.IsNumber {
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	}
	return v.Text
}

func (v MarkValue) MarshalJSON() ([]byte, error) {
	if v.IsNumber {
		return json.Marshal(v.Number)
	}
	return json.Marshal(v.Text)
}

func (v *MarkValue) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Points(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("mark value must be a number or string: %s", data)
	}
	*v = Label(s)
	return nil
}

type selectedOptions struct {
	Selected []string `json:"selected_options"`
}

// Payload is the JSON side channel of an entry: marks_data, score_details
// and homework_details. Empty strings mean the field is not populated.
type Payload struct {
	Marks           string
	ScoreDetails    string
	HomeworkDetails string
}

// EncodePayload serializes the detail-specific maps of e.
func EncodePayload(e LogEntry) (Payload, error) {
	var p Payload
	var err error
	switch d := e.Detail.(type) {
	case QuizDetail:
		if d.Marks != nil {
			p.Marks, err = marshalString(d.Marks)
		}
		if err == nil && d.Score != nil {
			p.ScoreDetails, err = marshalString(d.Score)
		}
	case HomeworkDetail:
		if d.Marks != nil {
			p.Marks, err = marshalString(d.Marks)
		}
	case YesNoSessionDetail:
		p.HomeworkDetails, err = marshalString(d.Statuses)
	case SelectSessionDetail:
		p.HomeworkDetails, err = marshalString(selectedOptions{Selected: d.Selected})
	}
	return p, err
}

// DecodeDetail rebuilds a Detail from its tag, item count and payload.
func DecodeDetail(t LogType, num *int, p Payload) (Detail, error) {
	switch t {
	case TypeBehavior:
		return BehaviorDetail{}, nil
	case TypeQuiz:
		d := QuizDetail{}
		if num != nil {
			d.NumQuestions = *num
		}
		if p.Marks != "" {
			if err := json.Unmarshal([]byte(p.Marks), &d.Marks); err != nil {
				return nil, fmt.Errorf("decode quiz marks: %w", err)
			}
		}
		if p.ScoreDetails != "" {
			d.Score = &ScoreDetails{}
			if err := json.Unmarshal([]byte(p.ScoreDetails), d.Score); err != nil {
				return nil, fmt.Errorf("decode score details: %w", err)
			}
		}
		return d, nil
	case TypeHomework:
		d := HomeworkDetail{NumItems: num}
		if p.Marks != "" {
			if err := json.Unmarshal([]byte(p.Marks), &d.Marks); err != nil {
				return nil, fmt.Errorf("decode homework marks: %w", err)
			}
		}
		return d, nil
	case TypeSessionYesNo:
		d := YesNoSessionDetail{Statuses: map[string]string{}}
		if p.HomeworkDetails != "" {
			if err := json.Unmarshal([]byte(p.HomeworkDetails), &d.Statuses); err != nil {
				return nil, fmt.Errorf("decode session statuses: %w", err)
			}
		}
		return d, nil
	case TypeSessionSelect:
		var so selectedOptions
		if p.HomeworkDetails != "" {
			if err := json.Unmarshal([]byte(p.HomeworkDetails), &so); err != nil {
				return nil, fmt.Errorf("decode selected options: %w", err)
			}
		}
		return SelectSessionDetail{Selected: so.Selected}, nil
	}
	return nil, fmt.Errorf("unknown log type %q", t)
}

func marshalString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
