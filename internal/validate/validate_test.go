package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/classlog/internal/model"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFilterSpec(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.FilterSpec)
		wantErr string
	}{
		{name: "defaults"},
		{
			name: "open start",
			mutate: func(f *model.FilterSpec) {
				f.EndDate = date(2024, 3, 1)
			},
		},
		{
			name: "ordered range",
			mutate: func(f *model.FilterSpec) {
				f.StartDate = date(2024, 3, 1)
				f.EndDate = date(2024, 3, 1)
			},
		},
		{
			name: "reversed range",
			mutate: func(f *model.FilterSpec) {
				f.StartDate = date(2024, 3, 2)
				f.EndDate = date(2024, 3, 1)
			},
			wantErr: "must not be before StartDate",
		},
		{
			name: "unknown mode",
			mutate: func(f *model.FilterSpec) {
				f.Students.Mode = "some"
			},
			wantErr: "selection_mode",
		},
		{
			name: "specific without values",
			mutate: func(f *model.FilterSpec) {
				f.QuizItems = model.Selection{Mode: model.SelectSpecific}
			},
			wantErr: "QuizItems.Values is required",
		},
		{
			name: "specific with values",
			mutate: func(f *model.FilterSpec) {
				f.Students = model.Selection{Mode: model.SelectSpecific, Values: []string{"s1"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := model.DefaultFilterSpec()
			if tt.mutate != nil {
				tt.mutate(&spec)
			}
			err := Struct(spec)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExportFormat(t *testing.T) {
	type request struct {
		Format string `validate:"required,export_format"`
	}
	for _, f := range []string{"xlsx", "zip", "XLSX"} {
		if err := Struct(request{Format: f}); err != nil {
			t.Errorf("format %q: unexpected error %v", f, err)
		}
	}
	for _, f := range []string{"", "pdf"} {
		if err := Struct(request{Format: f}); err == nil {
			t.Errorf("format %q: expected error", f)
		}
	}
}
