package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/classlog/internal/model"
)

// Snapshot reads everything an export needs into memory. The pipeline
// works only on the returned value and never touches the store again.
func (s *Store) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	entries, err := s.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	students, err := s.ListStudents()
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	groups, err := s.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	groupsEnabled, err := s.GroupsEnabled()
	if err != nil {
		return nil, fmt.Errorf("read groups setting: %w", err)
	}
	quiz, err := s.ListMarkTypes(model.MarkKindQuiz)
	if err != nil {
		return nil, fmt.Errorf("list quiz mark types: %w", err)
	}
	homework, err := s.ListMarkTypes(model.MarkKindHomework)
	if err != nil {
		return nil, fmt.Errorf("list homework mark types: %w", err)
	}
	sessions, err := s.ListSessionTypes()
	if err != nil {
		return nil, fmt.Errorf("list session types: %w", err)
	}

	snap := &model.Snapshot{
		Entries:           entries,
		Students:          make(map[string]model.Student, len(students)),
		Groups:            make(map[string]model.Group, len(groups)),
		GroupsEnabled:     groupsEnabled,
		QuizMarkTypes:     quiz,
		HomeworkMarkTypes: homework,
		SessionTypes:      sessions,
	}
	for _, st := range students {
		snap.Students[st.ID] = st
	}
	for _, g := range groups {
		snap.Groups[g.ID] = g
	}
	slog.Debug("loaded snapshot", "entries", len(entries), "students", len(students))
	return snap, nil
}

// LoadSeed writes a seed document into the store. Mark and session type
// lists replace the stored ones only when the seed provides them.
func (s *Store) LoadSeed(ctx context.Context, seed model.Seed) (int, error) {
	for _, g := range seed.Groups {
		if err := s.AddGroup(g); err != nil {
			return 0, fmt.Errorf("add group %s: %w", g.ID, err)
		}
	}
	if seed.GroupsEnabled != nil {
		if err := s.SetGroupsEnabled(*seed.GroupsEnabled); err != nil {
			return 0, err
		}
	}
	for _, st := range seed.Students {
		if err := s.AddStudent(st); err != nil {
			return 0, fmt.Errorf("add student %s: %w", st.ID, err)
		}
	}
	if len(seed.QuizMarkTypes) > 0 {
		if err := s.SetMarkTypes(model.MarkKindQuiz, seed.QuizMarkTypes); err != nil {
			return 0, err
		}
	}
	if len(seed.HomeworkMarkTypes) > 0 {
		if err := s.SetMarkTypes(model.MarkKindHomework, seed.HomeworkMarkTypes); err != nil {
			return 0, err
		}
	}
	if len(seed.SessionTypes) > 0 {
		if err := s.SetSessionTypes(seed.SessionTypes); err != nil {
			return 0, err
		}
	}

	entries := make([]model.LogEntry, 0, len(seed.Entries))
	for _, se := range seed.Entries {
		e, err := se.Entry()
		if err != nil {
			return 0, err
		}
		entries = append(entries, e)
	}
	stored, err := s.AppendEntries(ctx, entries)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}
