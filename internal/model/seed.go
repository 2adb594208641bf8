package model

import (
	"encoding/json"
	"fmt"
)

// Seed is the JSON document accepted by the load command. Entries use the
// flat key/value shape the classroom app keeps its logs in.
type Seed struct {
	Students          []Student     `json:"students"`
	Groups            []Group       `json:"groups"`
	GroupsEnabled     *bool         `json:"groups_enabled,omitempty"`
	QuizMarkTypes     []MarkType    `json:"quiz_mark_types"`
	HomeworkMarkTypes []MarkType    `json:"homework_mark_types"`
	SessionTypes      []SessionType `json:"homework_session_types"`
	Entries           []SeedEntry   `json:"entries"`
}

// SeedEntry is one log record in its loosely-typed stored form.
type SeedEntry struct {
	Timestamp       string          `json:"timestamp"`
	StudentID       string          `json:"student_id"`
	Type            string          `json:"type"`
	Behavior        string          `json:"behavior"`
	HomeworkType    string          `json:"homework_type,omitempty"`
	Comment         string          `json:"comment,omitempty"`
	Day             string          `json:"day,omitempty"`
	NumQuestions    *int            `json:"num_questions,omitempty"`
	NumItems        *int            `json:"num_items,omitempty"`
	MarksData       json.RawMessage `json:"marks_data,omitempty"`
	ScoreDetails    json.RawMessage `json:"score_details,omitempty"`
	HomeworkDetails json.RawMessage `json:"homework_details,omitempty"`
}

// Entry converts the record into a typed LogEntry.
func (s SeedEntry) Entry() (LogEntry, error) {
	t, err := ParseLogType(s.Type)
	if err != nil {
		return LogEntry{}, err
	}
	item := s.Behavior
	if t.IsHomework() && s.HomeworkType != "" {
		item = s.HomeworkType
	}
	num := s.NumItems
	if t == TypeQuiz {
		num = s.NumQuestions
	}
	detail, err := DecodeDetail(t, num, Payload{
		Marks:           rawString(s.MarksData),
		ScoreDetails:    rawString(s.ScoreDetails),
		HomeworkDetails: rawString(s.HomeworkDetails),
	})
	if err != nil {
		return LogEntry{}, fmt.Errorf("entry at %s for %s: %w", s.Timestamp, s.StudentID, err)
	}
	e := LogEntry{
		Timestamp: s.Timestamp,
		StudentID: s.StudentID,
		Item:      item,
		Comment:   s.Comment,
		DayName:   s.Day,
		Detail:    detail,
	}
	return e, e.Validate()
}

func rawString(m json.RawMessage) string {
	if len(m) == 0 || string(m) == "null" {
		return ""
	}
	return string(m)
}
