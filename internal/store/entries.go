package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pavelanni/classlog/internal/model"
)

// AppendEntries validates and stores log entries in one transaction.
// Entries without an ID get a random one; the stored entries are returned.
func (s *Store) AppendEntries(ctx context.Context, entries []model.LogEntry) ([]model.LogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stored := make([]model.LogEntry, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		p, err := model.EncodePayload(e)
		if err != nil {
			return nil, fmt.Errorf("encode entry %s: %w", e.ID, err)
		}
		var num sql.NullInt64
		if n, ok := e.NumItems(); ok {
			num = sql.NullInt64{Int64: int64(n), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO log_entries (id, timestamp, student_id, type, item, comment, day, num,
			   marks_data, score_details, homework_details)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Timestamp, e.StudentID, e.Type(), e.Item, e.Comment, e.DayName, num,
			p.Marks, p.ScoreDetails, p.HomeworkDetails,
		)
		if err != nil {
			return nil, fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
		stored = append(stored, e)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	slog.Debug("appended log entries", "count", len(stored))
	return stored, nil
}

// ListEntries returns every log entry in insertion order.
func (s *Store) ListEntries(ctx context.Context) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, student_id, type, item, comment, day, num, marks_data, score_details, homework_details
		 FROM log_entries ORDER BY seq`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.LogEntry
	for rows.Next() {
		var (
			e       model.LogEntry
			typ     string
			num     sql.NullInt64
			payload model.Payload
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.StudentID, &typ, &e.Item, &e.Comment, &e.DayName, &num,
			&payload.Marks, &payload.ScoreDetails, &payload.HomeworkDetails); err != nil {
			return nil, err
		}
		t, err := model.ParseLogType(typ)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		var n *int
		if num.Valid {
			v := int(num.Int64)
			n = &v
		}
		e.Detail, err = model.DecodeDetail(t, n, payload)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntryCount returns the number of stored log entries.
func (s *Store) EntryCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM log_entries`).Scan(&count)
	return count, err
}
