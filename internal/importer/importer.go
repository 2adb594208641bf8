// Package importer reads students and basic incidents back from a
// workbook, the reverse direction of the export package.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/classlog/internal/model"
	"github.com/pavelanni/classlog/internal/validate"
)

var (
	// ErrAmbiguousColumns is returned when no name column can be detected
	// and no Assume callback was provided.
	ErrAmbiguousColumns = errors.New("cannot detect student name columns")
	// ErrSheetNotFound is returned when the requested student sheet is missing.
	ErrSheetNotFound = errors.New("sheet not found")
)

// Store is the subset of the log store the importer needs.
type Store interface {
	ListStudents() ([]model.Student, error)
	AddStudent(st model.Student) error
	ListGroups() ([]model.Group, error)
	GroupsEnabled() (bool, error)
	ListEntries(ctx context.Context) ([]model.LogEntry, error)
	AppendEntries(ctx context.Context, entries []model.LogEntry) ([]model.LogEntry, error)
}

// Assumption tells the importer how to read name columns it could not
// detect from the header.
type Assumption int

const (
	// AssumeFirstLast reads the first name from column A and the last name
	// from column B.
	AssumeFirstLast Assumption = iota + 1
	// AssumeFullName reads "Last, First" or "First Last" from column A.
	AssumeFullName
)

// Options selects what to import.
type Options struct {
	// StudentSheet names the sheet holding the student list; empty skips
	// student import.
	StudentSheet    string `validate:"required_unless=ImportIncidents true"`
	ImportIncidents bool
	// Assume is asked when a student sheet has no recognizable name column.
	Assume func(sheet string) Assumption
}

// Report counts what an import did.
type Report struct {
	StudentsAdded     int
	StudentsExisting  int
	IncidentsAdded    int
	DuplicatesSkipped int
	RowsSkipped       int
}

// Importer reads workbooks into a Store.
type Importer struct {
	store  Store
	logger *slog.Logger
	newID  func() string
}

// New returns an importer writing to store. A nil logger uses slog.Default().
func New(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger, newID: uuid.NewString}
}

// Import reads the workbook at path.
func (im *Importer) Import(ctx context.Context, path string, opts Options) (Report, error) {
	var rep Report
	if err := validate.Struct(opts); err != nil {
		return rep, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return rep, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	students, err := im.store.ListStudents()
	if err != nil {
		return rep, fmt.Errorf("list students: %w", err)
	}

	if opts.StudentSheet != "" {
		if !slices.Contains(f.GetSheetList(), opts.StudentSheet) {
			return rep, fmt.Errorf("%w: %q", ErrSheetNotFound, opts.StudentSheet)
		}
		added, existing, err := im.importStudents(f, opts, students)
		if err != nil {
			return rep, err
		}
		rep.StudentsAdded, rep.StudentsExisting = len(added), existing
		students = append(students, added...)
	}

	if opts.ImportIncidents {
		if err := im.importIncidents(ctx, f, students, &rep); err != nil {
			return rep, err
		}
	}
	im.logger.Info("import finished", "path", path,
		"students_added", rep.StudentsAdded, "incidents_added", rep.IncidentsAdded,
		"duplicates", rep.DuplicatesSkipped, "skipped_rows", rep.RowsSkipped)
	return rep, nil
}

var headerSynonyms = map[string][]string{
	"first_name": {"first", "first name", "firstname"},
	"last_name":  {"last", "last name", "lastname", "surname"},
	"full_name":  {"full name", "name", "student name"},
	"nickname":   {"nickname", "preferred name", "nick"},
	"gender":     {"gender", "sex"},
	"group_name": {"group", "group name", "student group"},
}

func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func detectColumns(header []string) map[string]int {
	cols := map[string]int{}
	for key, names := range headerSynonyms {
		for i, h := range header {
			if slices.Contains(names, h) {
				cols[key] = i
				break
			}
		}
	}
	return cols
}

func nameKey(first, nickname, last string) string {
	return strings.ToLower(strings.TrimSpace(model.ComposeFullName(first, nickname, last)))
}

func (im *Importer) importStudents(f *excelize.File, opts Options, existing []model.Student) ([]model.Student, int, error) {
	rows, err := f.GetRows(opts.StudentSheet)
	if err != nil {
		return nil, 0, fmt.Errorf("read sheet %q: %w", opts.StudentSheet, err)
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}
	cols := detectColumns(normalizeHeader(rows[0]))
	_, hasFirst := cols["first_name"]
	_, hasLast := cols["last_name"]
	_, hasFull := cols["full_name"]
	if (!hasFirst || !hasLast) && !hasFull {
		if opts.Assume == nil {
			return nil, 0, fmt.Errorf("%w in sheet %q", ErrAmbiguousColumns, opts.StudentSheet)
		}
		switch opts.Assume(opts.StudentSheet) {
		case AssumeFirstLast:
			cols["first_name"], cols["last_name"] = 0, 1
		case AssumeFullName:
			cols["full_name"] = 0
		default:
			return nil, 0, fmt.Errorf("%w in sheet %q", ErrAmbiguousColumns, opts.StudentSheet)
		}
	}

	groupsEnabled, err := im.store.GroupsEnabled()
	if err != nil {
		return nil, 0, err
	}
	groups, err := im.store.ListGroups()
	if err != nil {
		return nil, 0, err
	}

	known := map[string]bool{}
	for _, st := range existing {
		known[strings.ToLower(strings.TrimSpace(st.DisplayName()))] = true
	}

	var added []model.Student
	duplicates := 0
	for _, row := range rows[1:] {
		get := func(key string) string {
			i, ok := cols[key]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		first, last := get("first_name"), get("last_name")
		if first == "" || last == "" {
			if full := get("full_name"); full != "" {
				first, last = splitFullName(full)
			}
		}
		if first == "" {
			continue
		}
		nickname := get("nickname")
		key := nameKey(first, nickname, last)
		if known[key] {
			duplicates++
			continue
		}
		st := model.Student{
			ID:        im.newID(),
			FirstName: first,
			LastName:  last,
			FullName:  model.ComposeFullName(first, nickname, last),
			Nickname:  nickname,
			Gender:    parseGender(get("gender")),
		}
		if name := get("group_name"); name != "" && groupsEnabled {
			for _, g := range groups {
				if strings.EqualFold(g.Name, name) {
					st.GroupID = g.ID
					break
				}
			}
		}
		if err := im.store.AddStudent(st); err != nil {
			return nil, 0, fmt.Errorf("add student %s: %w", st.FullName, err)
		}
		known[key] = true
		added = append(added, st)
	}
	return added, duplicates, nil
}

// splitFullName accepts "Last, First" and "First Last". A single word is
// taken as a first name.
func splitFullName(full string) (first, last string) {
	if l, f, ok := strings.Cut(full, ","); ok {
		return strings.TrimSpace(f), strings.TrimSpace(l)
	}
	if f, l, ok := strings.Cut(full, " "); ok {
		return strings.TrimSpace(f), strings.TrimSpace(l)
	}
	return full, ""
}

func parseGender(s string) string {
	switch strings.ToLower(s) {
	case "girl", "female", "f":
		return "Girl"
	}
	return "Boy"
}

type incidentColumns struct {
	timestamp, typ, name, comment, day int
	correct, total                     int
}

func findColumn(header []string, names ...string) int {
	for _, n := range names {
		if i := slices.Index(header, n); i >= 0 {
			return i
		}
	}
	return -1
}

func detectIncidentColumns(header []string) (incidentColumns, bool) {
	c := incidentColumns{
		timestamp: findColumn(header, "timestamp"),
		typ:       findColumn(header, "type"),
		name:      findColumn(header, "behavior/homework/quiz name", "behavior/quiz name"),
		comment:   findColumn(header, "comment"),
		day:       findColumn(header, "day"),
		correct:   findColumn(header, "correct/did", "correct"),
		total:     findColumn(header, "total qs/total selected", "total qs"),
	}
	ok := c.timestamp >= 0 && c.typ >= 0 && c.name >= 0 && c.comment >= 0 && c.day >= 0
	return c, ok
}

type incidentKey struct {
	student, timestamp, item string
	typ                      model.LogType
}

func canonicalTimestamp(s string) string {
	if t, err := model.ParseTimestamp(s); err == nil {
		return model.FormatTimestamp(t)
	}
	return s
}

func (im *Importer) importIncidents(ctx context.Context, f *excelize.File, students []model.Student, rep *Report) error {
	existing, err := im.store.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	seen := map[incidentKey]bool{}
	for _, e := range existing {
		seen[incidentKey{e.StudentID, canonicalTimestamp(e.Timestamp), e.Item, e.Type()}] = true
	}

	var batch []model.LogEntry
	for _, sheet := range f.GetSheetList() {
		st, ok := matchStudent(sheet, students)
		if !ok {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		cols, ok := detectIncidentColumns(normalizeHeader(rows[0]))
		if !ok {
			im.logger.Warn("skipping sheet without incident headers", "sheet", sheet)
			continue
		}
		for i, row := range rows[1:] {
			e, ok := parseIncident(row, cols, st.ID)
			if !ok {
				im.logger.Debug("skipping incident row", "sheet", sheet, "row", i+2)
				rep.RowsSkipped++
				continue
			}
			key := incidentKey{e.StudentID, e.Timestamp, e.Item, e.Type()}
			if seen[key] {
				rep.DuplicatesSkipped++
				continue
			}
			seen[key] = true
			batch = append(batch, e)
		}
	}
	if len(batch) == 0 {
		return nil
	}
	stored, err := im.store.AppendEntries(ctx, batch)
	if err != nil {
		return fmt.Errorf("store incidents: %w", err)
	}
	rep.IncidentsAdded = len(stored)
	return nil
}

// matchStudent accepts sheet names in the exported First_Last form or the
// full name with underscores for spaces.
func matchStudent(sheet string, students []model.Student) (model.Student, bool) {
	lower := strings.ToLower(sheet)
	spaced := strings.ReplaceAll(lower, "_", " ")
	for _, st := range students {
		if lower == strings.ToLower(st.FirstName+"_"+st.LastName) ||
			spaced == strings.ToLower(st.DisplayName()) {
			return st, true
		}
	}
	return model.Student{}, false
}

var importTimestampLayouts = []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseImportTimestamp(s string) (time.Time, bool) {
	for _, layout := range importTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseIncident(row []string, cols incidentColumns, studentID string) (model.LogEntry, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	ts, name := cell(cols.timestamp), cell(cols.name)
	if ts == "" || name == "" {
		return model.LogEntry{}, false
	}
	t, ok := parseImportTimestamp(ts)
	if !ok {
		return model.LogEntry{}, false
	}
	e := model.LogEntry{
		Timestamp: model.FormatTimestamp(t),
		StudentID: studentID,
		Item:      name,
		Comment:   cell(cols.comment),
		DayName:   cell(cols.day),
	}

	switch strings.ToLower(cell(cols.typ)) {
	case "", "behavior":
		e.Detail = model.BehaviorDetail{}
	case "quiz":
		correct, hasCorrect := parseCount(cell(cols.correct))
		total, hasTotal := parseCount(cell(cols.total))
		switch {
		case hasCorrect && hasTotal:
			e.Detail = model.QuizDetail{NumQuestions: total, Score: &model.ScoreDetails{Correct: correct, TotalAsked: total}}
		case hasCorrect:
			e.Detail = model.QuizDetail{Marks: map[string]float64{model.MarkCorrect: float64(correct)}}
		default:
			e.Detail = model.QuizDetail{Marks: map[string]float64{}}
		}
	default:
		return model.LogEntry{}, false
	}
	return e, true
}

func parseCount(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
