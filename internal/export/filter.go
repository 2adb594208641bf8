package export

import (
	"slices"
	"time"

	"github.com/pavelanni/classlog/internal/model"
)

// Result is the filtered, time-ordered view of the log.
type Result struct {
	Entries []model.LogEntry
	// StudentIDs lists the distinct students in Entries, in first-seen order.
	StudentIDs []string
}

// Filter selects the entries matching spec and sorts them by timestamp.
// Entries whose timestamp cannot be parsed are skipped. Equal timestamps
// keep their input order.
func Filter(entries []model.LogEntry, spec model.FilterSpec) Result {
	start := civilDate(spec.StartDate)
	end := civilDate(spec.EndDate)

	type timed struct {
		entry model.LogEntry
		at    time.Time
	}
	var kept []timed
	for _, e := range entries {
		t := e.Type()
		if !spec.Includes(t) {
			continue
		}
		ts, err := model.ParseTimestamp(e.Timestamp)
		if err != nil {
			continue
		}
		day := dateOf(ts)
		if start != nil && day.Before(*start) {
			continue
		}
		if end != nil && day.After(*end) {
			continue
		}
		if !spec.Students.Allows(e.StudentID) {
			continue
		}
		if !spec.ItemSelection(t).Allows(e.Item) {
			continue
		}
		kept = append(kept, timed{entry: e, at: ts})
	}
	slices.SortStableFunc(kept, func(a, b timed) int {
		return a.at.Compare(b.at)
	})
	var out []model.LogEntry
	for _, k := range kept {
		out = append(out, k.entry)
	}

	res := Result{Entries: out}
	seen := make(map[string]bool)
	for _, e := range out {
		if !seen[e.StudentID] {
			seen[e.StudentID] = true
			res.StudentIDs = append(res.StudentIDs, e.StudentID)
		}
	}
	return res
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func civilDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOf(*t)
	return &d
}

// Kind identifies what a Bucket holds.
type Kind int

const (
	KindBehavior Kind = iota
	KindQuiz
	KindHomework
	KindCombined
	KindMaster
)

// Bucket is a named group of entries that becomes one log sheet.
type Bucket struct {
	Kind    Kind
	Title   string
	Entries []model.LogEntry
}

// Mixed reports whether the bucket can hold entries of every type.
func (b Bucket) Mixed() bool {
	return b.Kind == KindCombined || b.Kind == KindMaster
}

// Group partitions a filtered result into sheet buckets. Per-type buckets
// are dropped when empty; the combined or master bucket is present
// whenever the result is not empty.
func Group(res Result, spec model.FilterSpec) []Bucket {
	if len(res.Entries) == 0 {
		return nil
	}
	if !spec.SeparateSheets {
		return []Bucket{{Kind: KindCombined, Title: "Combined Log", Entries: res.Entries}}
	}

	behavior := Bucket{Kind: KindBehavior, Title: "Behavior Log"}
	quiz := Bucket{Kind: KindQuiz, Title: "Quiz Log"}
	homework := Bucket{Kind: KindHomework, Title: "Homework Log"}
	for _, e := range res.Entries {
		switch t := e.Type(); {
		case t == model.TypeBehavior:
			behavior.Entries = append(behavior.Entries, e)
		case t == model.TypeQuiz:
			quiz.Entries = append(quiz.Entries, e)
		case t.IsHomework():
			homework.Entries = append(homework.Entries, e)
		}
	}

	var buckets []Bucket
	for _, b := range []Bucket{behavior, quiz, homework} {
		if len(b.Entries) > 0 {
			buckets = append(buckets, b)
		}
	}
	if spec.IncludeMaster {
		buckets = append(buckets, Bucket{Kind: KindMaster, Title: "Master Log", Entries: res.Entries})
	}
	return buckets
}
