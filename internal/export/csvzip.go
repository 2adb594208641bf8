package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/classlog/internal/model"
)

var logCSVHeader = []string{
	"Timestamp", "Date", "Time", "Day", "Student_ID", "First_Name", "Last_Name",
	"Log_Type", "Item_Name", "Comment", "Num_Questions_Items",
	"Marks_Data_JSON", "Score_Details_JSON", "Homework_Details_JSON",
}

var studentCSVHeader = []string{"Student_ID", "First_Name", "Last_Name", "Nickname", "Gender", "Group_ID"}

// writeCSVZip writes all_logs.csv, students.csv and, when summaryText is
// not empty, summary.txt.
func writeCSVZip(w io.Writer, res Result, snap *model.Snapshot, summaryText string) error {
	zw := zip.NewWriter(w)

	logs, err := zw.Create("all_logs.csv")
	if err != nil {
		return err
	}
	if err := writeLogCSV(logs, res.Entries, snap); err != nil {
		return fmt.Errorf("all_logs.csv: %w", err)
	}

	students, err := zw.Create("students.csv")
	if err != nil {
		return err
	}
	if err := writeStudentCSV(students, snap); err != nil {
		return fmt.Errorf("students.csv: %w", err)
	}

	if summaryText != "" {
		sw, err := zw.Create("summary.txt")
		if err != nil {
			return err
		}
		if _, err := io.WriteString(sw, summaryText); err != nil {
			return fmt.Errorf("summary.txt: %w", err)
		}
	}
	return zw.Close()
}

func writeLogCSV(w io.Writer, entries []model.LogEntry, snap *model.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(logCSVHeader); err != nil {
		return err
	}
	for _, e := range entries {
		p, err := model.EncodePayload(e)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		first, last := "N/A", "N/A"
		if st, ok := snap.Student(e.StudentID); ok {
			first, last = st.FirstName, st.LastName
		}
		var date, clock string
		if ts, err := model.ParseTimestamp(e.Timestamp); err == nil {
			date, clock = ts.Format("2006-01-02"), ts.Format("15:04:05")
		}
		num := ""
		if n, ok := e.NumItems(); ok {
			num = strconv.Itoa(n)
		}
		record := []string{
			e.Timestamp, date, clock, e.Day(), e.StudentID, first, last,
			capitalize(string(e.Type())), e.Item, e.Comment, num,
			p.Marks, p.ScoreDetails, p.HomeworkDetails,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeStudentCSV(w io.Writer, snap *model.Snapshot) error {
	students := make([]model.Student, 0, len(snap.Students))
	for _, st := range snap.Students {
		students = append(students, st)
	}
	slices.SortFunc(students, func(a, b model.Student) int { return strings.Compare(a.ID, b.ID) })

	cw := csv.NewWriter(w)
	if err := cw.Write(studentCSVHeader); err != nil {
		return err
	}
	for _, st := range students {
		if err := cw.Write([]string{st.ID, st.FirstName, st.LastName, st.Nickname, st.Gender, st.GroupID}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// summaryText renders the plain-text summary bundled with a CSV archive.
func summaryText(res Result, spec model.FilterSpec, now time.Time) string {
	var behavior, quiz, homework int
	for _, e := range res.Entries {
		switch t := e.Type(); {
		case t == model.TypeBehavior:
			behavior++
		case t == model.TypeQuiz:
			quiz++
		case t.IsHomework():
			homework++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Log Export Summary - %s\n", now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Date Range: %s to %s\n", dateOrAny(spec.StartDate), dateOrAny(spec.EndDate))
	fmt.Fprintf(&b, "Total Log Entries Exported: %d\n", len(res.Entries))
	fmt.Fprintf(&b, "Students: %d\n", len(res.StudentIDs))
	if spec.IncludeBehavior {
		fmt.Fprintf(&b, "Behavior Entries: %d\n", behavior)
	}
	if spec.IncludeQuiz {
		fmt.Fprintf(&b, "Quiz Entries: %d\n", quiz)
	}
	if spec.IncludeHomework {
		fmt.Fprintf(&b, "Homework Entries: %d\n", homework)
	}
	return b.String()
}

func dateOrAny(t *time.Time) string {
	if t == nil {
		return "Any"
	}
	return t.Format("2006-01-02")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
