package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pavelanni/classlog/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seedMarkTypes(); err != nil {
		return nil, fmt.Errorf("seed mark types: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS student_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		group_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS log_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		student_id TEXT NOT NULL,
		type TEXT NOT NULL,
		item TEXT NOT NULL DEFAULT '',
		comment TEXT NOT NULL DEFAULT '',
		day TEXT NOT NULL DEFAULT '',
		num INTEGER,
		marks_data TEXT NOT NULL DEFAULT '',
		score_details TEXT NOT NULL DEFAULT '',
		homework_details TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_log_entries_student ON log_entries(student_id, timestamp);

	CREATE TABLE IF NOT EXISTS mark_types (
		kind TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		default_points REAL NOT NULL DEFAULT 0,
		contributes_to_total INTEGER NOT NULL DEFAULT 1,
		is_extra_credit INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (kind, id)
	);

	CREATE TABLE IF NOT EXISTS session_types (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) seedMarkTypes() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM mark_types`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if err := s.SetMarkTypes(model.MarkKindQuiz, model.DefaultQuizMarkTypes()); err != nil {
		return err
	}
	return s.SetMarkTypes(model.MarkKindHomework, model.DefaultHomeworkMarkTypes())
}

// AddStudent inserts or replaces a student.
func (s *Store) AddStudent(st model.Student) error {
	if st.FullName == "" {
		st.FullName = strings.TrimSpace(model.ComposeFullName(st.FirstName, st.Nickname, st.LastName))
	}
	_, err := s.db.Exec(
		`INSERT INTO students (id, first_name, last_name, full_name, nickname, gender, group_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET first_name = excluded.first_name, last_name = excluded.last_name,
		   full_name = excluded.full_name, nickname = excluded.nickname, gender = excluded.gender,
		   group_id = excluded.group_id`,
		st.ID, st.FirstName, st.LastName, st.FullName, st.Nickname, st.Gender, st.GroupID,
	)
	return err
}

// GetStudent returns a student by ID, or nil if missing.
func (s *Store) GetStudent(id string) (*model.Student, error) {
	var st model.Student
	err := s.db.QueryRow(
		`SELECT id, first_name, last_name, full_name, nickname, gender, group_id FROM students WHERE id = ?`, id,
	).Scan(&st.ID, &st.FirstName, &st.LastName, &st.FullName, &st.Nickname, &st.Gender, &st.GroupID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListStudents returns all students ordered by surname then first name.
func (s *Store) ListStudents() ([]model.Student, error) {
	rows, err := s.db.Query(
		`SELECT id, first_name, last_name, full_name, nickname, gender, group_id
		 FROM students ORDER BY lower(last_name), lower(first_name), id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.FirstName, &st.LastName, &st.FullName, &st.Nickname, &st.Gender, &st.GroupID); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// StudentCount returns the number of students.
func (s *Store) StudentCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM students`).Scan(&count)
	return count, err
}

// AddGroup inserts or renames a student group.
func (s *Store) AddGroup(g model.Group) error {
	_, err := s.db.Exec(
		`INSERT INTO student_groups (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		g.ID, g.Name,
	)
	return err
}

// ListGroups returns all student groups.
func (s *Store) ListGroups() ([]model.Group, error) {
	rows, err := s.db.Query(`SELECT id, name FROM student_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// SetMarkTypes replaces the ordered mark type list of one kind.
func (s *Store) SetMarkTypes(kind model.MarkKind, types []model.MarkType) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mark_types WHERE kind = ?`, kind); err != nil {
		return err
	}
	for i, mt := range types {
		_, err := tx.Exec(
			`INSERT INTO mark_types (kind, position, id, name, default_points, contributes_to_total, is_extra_credit)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			kind, i, mt.ID, mt.Name, mt.DefaultPoints, mt.ContributesToTotal, mt.IsExtraCredit,
		)
		if err != nil {
			return fmt.Errorf("insert mark type %s: %w", mt.ID, err)
		}
	}
	return tx.Commit()
}

// ListMarkTypes returns the mark types of one kind in column order.
func (s *Store) ListMarkTypes(kind model.MarkKind) ([]model.MarkType, error) {
	rows, err := s.db.Query(
		`SELECT id, name, default_points, contributes_to_total, is_extra_credit
		 FROM mark_types WHERE kind = ? ORDER BY position`, kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []model.MarkType
	for rows.Next() {
		var mt model.MarkType
		if err := rows.Scan(&mt.ID, &mt.Name, &mt.DefaultPoints, &mt.ContributesToTotal, &mt.IsExtraCredit); err != nil {
			return nil, err
		}
		types = append(types, mt)
	}
	return types, rows.Err()
}

// SetSessionTypes replaces the ordered homework session type list.
func (s *Store) SetSessionTypes(types []model.SessionType) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM session_types`); err != nil {
		return err
	}
	for i, st := range types {
		if _, err := tx.Exec(`INSERT INTO session_types (id, position, name) VALUES (?, ?, ?)`, st.ID, i, st.Name); err != nil {
			return fmt.Errorf("insert session type %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

// ListSessionTypes returns the homework session types in column order.
func (s *Store) ListSessionTypes() ([]model.SessionType, error) {
	rows, err := s.db.Query(`SELECT id, name FROM session_types ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []model.SessionType
	for rows.Next() {
		var st model.SessionType
		if err := rows.Scan(&st.ID, &st.Name); err != nil {
			return nil, err
		}
		types = append(types, st)
	}
	return types, rows.Err()
}
