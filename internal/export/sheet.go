package export

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/classlog/internal/model"
)

// RowStyle marks rows that are rendered with emphasis.
type RowStyle int

const (
	StyleHeader RowStyle = iota + 1
	StyleTitle
	StyleSection
	StyleSubheader
)

// Sheet is an in-memory table. Rows[0] is usually the header row.
type Sheet struct {
	Title  string
	Rows   [][]any
	Widths []float64
	// Freeze is the top-left cell of the scrolling pane, e.g. "A2".
	Freeze string
	Styles map[int]RowStyle
	// Centered lists 0-based columns whose data cells are centered.
	Centered []int
}

// Header returns the first row as strings.
func (s Sheet) Header() []string {
	if len(s.Rows) == 0 {
		return nil
	}
	out := make([]string, len(s.Rows[0]))
	for i, v := range s.Rows[0] {
		out[i] = fmt.Sprint(v)
	}
	return out
}

// Column returns the 0-based index of a header, or -1.
func (s Sheet) Column(name string) int {
	for i, h := range s.Header() {
		if h == name {
			return i
		}
	}
	return -1
}

const (
	minAutoWidth = 10
	maxAutoWidth = 50
)

// autoFit sets every column width to the longest cell plus padding,
// clamped to [minAutoWidth, maxAutoWidth].
func autoFit(rows [][]any) []float64 {
	var widths []float64
	for _, row := range rows {
		for i, v := range row {
			for len(widths) <= i {
				widths = append(widths, 0)
			}
			if n := float64(utf8.RuneCountInString(cellText(v))); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for i, w := range widths {
		widths[i] = min(max(w+2, minAutoWidth), maxAutoWidth)
	}
	return widths
}

func cellText(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Log sheet column groups.
const (
	colBehavior      = "Behavior"
	colQuizName      = "Quiz Name"
	colNumQuestions  = "Num Questions"
	colQuizScore     = "Quiz Score (%)"
	colHomeworkName  = "Homework Type/Session Name"
	colNumItems      = "Num Items"
	colHomeworkTotal = "Homework Score (Total Pts)"
	colHomeworkEff   = "Homework Effort"
	colComment       = "Comment"
	colLogType       = "Log Type"
)

var logSheetPrefix = []string{"Timestamp", "Date", "Time", "Day", "Student ID", "First Name", "Last Name"}

type logLayout struct {
	header []string

	behavior int
	quiz     int
	homework int
	comment  int
	logType  int

	nQuizMarks     int
	nHomeworkMarks int
}

func newLogLayout(b Bucket, snap *model.Snapshot) logLayout {
	l := logLayout{behavior: -1, quiz: -1, homework: -1, logType: -1}
	l.header = append(l.header, logSheetPrefix...)
	mixed := b.Mixed()

	if mixed || b.Kind == KindBehavior {
		l.behavior = len(l.header)
		l.header = append(l.header, colBehavior)
	}
	if mixed || b.Kind == KindQuiz {
		l.quiz = len(l.header)
		l.header = append(l.header, colQuizName, colNumQuestions)
		for _, mt := range snap.QuizMarkTypes {
			l.header = append(l.header, markHeader(mt.Name))
		}
		l.nQuizMarks = len(snap.QuizMarkTypes)
		l.header = append(l.header, colQuizScore)
	}
	if mixed || b.Kind == KindHomework {
		l.homework = len(l.header)
		l.header = append(l.header, colHomeworkName, colNumItems)
		for _, mt := range snap.HomeworkMarkTypes {
			l.header = append(l.header, markHeader(mt.Name))
		}
		l.nHomeworkMarks = len(snap.HomeworkMarkTypes)
		l.header = append(l.header, colHomeworkTotal, colHomeworkEff)
		for _, st := range snap.SessionTypes {
			l.header = append(l.header, st.Name)
		}
	}
	l.comment = len(l.header)
	l.header = append(l.header, colComment)
	if mixed {
		l.logType = len(l.header)
		l.header = append(l.header, colLogType)
	}
	return l
}

func markHeader(name string) string {
	if name == "Complete" {
		return "Complete/Did"
	}
	return name
}

// BuildLogSheet materializes one bucket. Per-type sheets carry only their
// own column block; combined and master sheets carry all blocks plus a
// Log Type column.
func BuildLogSheet(b Bucket, snap *model.Snapshot) Sheet {
	l := newLogLayout(b, snap)
	rows := make([][]any, 0, len(b.Entries)+1)
	rows = append(rows, stringsToRow(l.header))
	for _, e := range b.Entries {
		rows = append(rows, l.row(e, snap))
	}
	return Sheet{
		Title:  b.Title,
		Rows:   rows,
		Widths: autoFit(rows),
		Freeze: "A2",
		Styles: map[int]RowStyle{0: StyleHeader},
	}
}

func (l logLayout) row(e model.LogEntry, snap *model.Snapshot) []any {
	row := blankRow(len(l.header))
	row[0] = e.Timestamp
	if ts, err := model.ParseTimestamp(e.Timestamp); err == nil {
		row[1] = ts.Format("2006-01-02")
		row[2] = ts.Format("15:04:05")
	}
	row[3] = e.Day()
	row[4] = e.StudentID
	if st, ok := snap.Student(e.StudentID); ok {
		row[5], row[6] = st.FirstName, st.LastName
	} else {
		row[5], row[6] = "N/A", "N/A"
	}

	switch d := e.Detail.(type) {
	case model.BehaviorDetail:
		if l.behavior >= 0 {
			row[l.behavior] = e.Item
		}
	case model.QuizDetail:
		if l.quiz >= 0 {
			l.fillQuiz(row, e, d, snap)
		}
	default:
		if l.homework >= 0 && e.Type().IsHomework() {
			l.fillHomework(row, e, snap)
		}
	}

	row[l.comment] = e.Comment
	if l.logType >= 0 {
		row[l.logType] = e.Type().Label()
	}
	return row
}

func (l logLayout) fillQuiz(row []any, e model.LogEntry, d model.QuizDetail, snap *model.Snapshot) {
	c := l.quiz
	row[c] = e.Item
	row[c+1] = d.NumQuestions
	if d.Marks != nil {
		for i, mt := range snap.QuizMarkTypes {
			row[c+2+i] = d.Marks[mt.ID]
		}
	}
	if pct, ok := QuizScore(d, snap.QuizMarkTypes); ok {
		row[c+2+l.nQuizMarks] = round2(pct)
	}
}

func (l logLayout) fillHomework(row []any, e model.LogEntry, snap *model.Snapshot) {
	c := l.homework
	marks := c + 2
	total := marks + l.nHomeworkMarks
	sessions := total + 2

	row[c] = e.Item
	if n, ok := e.NumItems(); ok {
		row[c+1] = n
	}
	switch d := e.Detail.(type) {
	case model.HomeworkDetail:
		for i, mt := range snap.HomeworkMarkTypes {
			if v, ok := d.Marks[mt.ID]; ok {
				row[marks+i] = v.Cell()
			}
		}
		pts, effort := HomeworkTotals(d)
		if pts != 0 {
			row[total] = pts
		}
		if !effort.IsZero() {
			row[total+1] = effort.Cell()
		}
	case model.YesNoSessionDetail:
		for i, s := range SessionStatuses(d, snap.SessionTypes) {
			row[sessions+i] = s
		}
	case model.SelectSessionDetail:
		// The selection has no column of its own; it shares the first mark column.
		if l.nHomeworkMarks > 0 {
			row[marks] = SelectedDisplay(d)
		}
	}
}

func blankRow(n int) []any {
	row := make([]any, n)
	for i := range row {
		row[i] = ""
	}
	return row
}

func stringsToRow(ss []string) []any {
	row := make([]any, len(ss))
	for i, s := range ss {
		row[i] = s
	}
	return row
}

// Sheet names are limited to 31 characters and may not contain these.
const (
	maxSheetName     = 31
	invalidSheetRune = `[]:*?/\`
)

// SheetNamer hands out unique, valid sheet names. Uniqueness is
// case-insensitive, as spreadsheet applications compare names that way.
type SheetNamer struct {
	used map[string]bool
}

// NewSheetNamer reserves the given names.
func NewSheetNamer(reserved ...string) *SheetNamer {
	n := &SheetNamer{used: make(map[string]bool)}
	for _, r := range reserved {
		n.used[strings.ToLower(r)] = true
	}
	return n
}

// Name sanitizes raw and disambiguates it with a _2, _3... suffix when it
// collides with a name already handed out.
func (n *SheetNamer) Name(raw string) string {
	base := SanitizeSheetName(raw)
	name := base
	for i := 2; n.used[strings.ToLower(name)]; i++ {
		suffix := fmt.Sprintf("_%d", i)
		name = trimSheetName(truncateRunes(base, maxSheetName-len(suffix))) + suffix
	}
	n.used[strings.ToLower(name)] = true
	return name
}

// SanitizeSheetName replaces characters sheet names may not contain,
// trims surrounding quotes and blanks, and truncates to 31 characters.
func SanitizeSheetName(raw string) string {
	s := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidSheetRune, r) {
			return '_'
		}
		return r
	}, raw)
	s = trimSheetName(s)
	if s == "" {
		s = "Sheet"
	}
	return trimSheetName(truncateRunes(s, maxSheetName))
}

// trimSheetName strips blanks and single quotes from both ends; a sheet
// name may not start or end with a quote.
func trimSheetName(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "'"))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
