package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/classlog/internal/export"
	appI18n "github.com/pavelanni/classlog/internal/i18n"
	"github.com/pavelanni/classlog/internal/importer"
	"github.com/pavelanni/classlog/internal/model"
	"github.com/pavelanni/classlog/internal/store"
	"github.com/pavelanni/classlog/internal/validate"
)

const dateLayout = "2006-01-02"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "classlog",
		Short:             "Classroom log export and import",
		SilenceUsage:      true,
		PersistentPreRunE: initCommand,
	}

	pf := root.PersistentFlags()
	pf.String("db", "classlog.db", "SQLite database path")
	pf.StringP("lang", "l", "en", "Message language (en, ru)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(exportCmd(), importCmd(), attendanceCmd(), loadCmd(), studentsCmd())
	return root
}

// initCommand sets up logging and localization before any subcommand runs.
func initCommand(cmd *cobra.Command, _ []string) error {
	// A missing .env is normal.
	_ = godotenv.Load()
	setupLogging(cmd)
	v := viperForCmd(cmd)
	if err := appI18n.Init("en"); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	cmd.SetContext(appI18n.WithLanguage(cmd.Context(), resolveLanguage(v.GetString("lang"))))
	return nil
}

// resolveLanguage returns lang when a message file exists for it and
// English otherwise.
func resolveLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if slices.Contains(appI18n.Languages(), lang) {
		return lang
	}
	slog.Warn("unsupported language, using English", "lang", lang, "available", appI18n.Languages())
	return "en"
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the log as an Excel workbook or a CSV archive",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "", "Output file path (required)")
	f.String("format", "", "Output format (xlsx, zip); defaults to the output extension")
	f.String("start", "", "First day to include, YYYY-MM-DD")
	f.String("end", "", "Last day to include, YYYY-MM-DD")
	f.StringSlice("students", nil, "Student IDs to include (default all)")
	f.StringSlice("behaviors", nil, "Behavior names to include (default all)")
	f.StringSlice("quizzes", nil, "Quiz names to include (default all)")
	f.StringSlice("homework", nil, "Homework names to include (default all)")
	f.Bool("no-behavior", false, "Leave out behavior entries")
	f.Bool("no-quiz", false, "Leave out quiz entries")
	f.Bool("no-homework", false, "Leave out homework entries")
	f.Bool("separate", true, "Write one log sheet per entry category")
	f.Bool("master", true, "Add a master log sheet (with --separate)")
	f.Bool("summaries", true, "Add the summary sheet or summary.txt")
	f.Bool("student-info", true, "Add per-student sheets and the roster sheet")
	f.Bool("unattended", false, "Background export; a locked destination is only a warning")

	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import students and log entries from an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("sheet", "", "Sheet holding the student list")
	f.Bool("incidents", false, "Import behavior and quiz entries from per-student sheets")
	f.String("assume", "", "Name layout when no name header is found (first-last, full-name); prompts when empty")
	return cmd
}

func attendanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attendance",
		Short: "Write an attendance report for a date range",
		RunE:  runAttendance,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "attendance.xlsx", "Output file path")
	f.String("start", "", "First day, YYYY-MM-DD (required)")
	f.String("end", "", "Last day, YYYY-MM-DD (required)")
	f.StringSlice("students", nil, "Student IDs (default all)")

	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load FILE...",
		Short: "Load students, settings and log entries from JSON seed files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLoad,
	}
	cmd.Flags().Bool("force", false, "Load files even if they were loaded before")
	return cmd
}

func studentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "students",
		Short: "List students",
		Args:  cobra.NoArgs,
		RunE:  runStudents,
	}
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CLASSLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("classlog")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/classlog")
	v.AddConfigPath("/etc/classlog")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// exportRequest is validated before any work is done.
type exportRequest struct {
	Output string `validate:"required"`
	Format string `validate:"export_format"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	req := exportRequest{Output: v.GetString("output"), Format: v.GetString("format")}
	if req.Format == "" {
		req.Format = formatFromPath(req.Output)
	}
	req.Format = strings.ToLower(req.Format)
	if err := validate.Struct(req); err != nil {
		return err
	}

	spec, err := filterSpecFrom(v)
	if err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := db.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	x := export.NewExporter(slog.Default(), export.WithUnattended(v.GetBool("unattended")))
	switch req.Format {
	case "zip":
		err = x.ExportCSVZip(ctx, snap, spec, req.Output)
	default:
		err = x.ExportWorkbook(ctx, snap, spec, req.Output)
	}
	if err != nil {
		return localizeExportError(ctx, cmd.ErrOrStderr(), req.Output, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, appI18n.Td(ctx, "ExportDone", map[string]any{"Path": req.Output}))
	fmt.Fprintln(out, appI18n.Tp(ctx, "EntriesExported", len(export.Filter(snap.Entries, spec).Entries)))
	return nil
}

// localizeExportError prints a user-facing message for the errors a
// user can act on and returns err unchanged.
func localizeExportError(ctx context.Context, w io.Writer, path string, err error) error {
	switch {
	case errors.Is(err, export.ErrDestinationLocked):
		fmt.Fprintln(w, appI18n.Td(ctx, "DestinationLocked", map[string]any{"Path": path}))
	case errors.Is(err, export.ErrNoEntries):
		fmt.Fprintln(w, appI18n.T(ctx, "NoEntries"))
	}
	return err
}

func formatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return "zip"
	}
	return "xlsx"
}

// filterSpecFrom builds a filter from the export flags.
func filterSpecFrom(v *viper.Viper) (model.FilterSpec, error) {
	spec := model.DefaultFilterSpec()

	var err error
	if spec.StartDate, err = parseDate(v.GetString("start")); err != nil {
		return spec, err
	}
	if spec.EndDate, err = parseDate(v.GetString("end")); err != nil {
		return spec, err
	}

	spec.IncludeBehavior = !v.GetBool("no-behavior")
	spec.IncludeQuiz = !v.GetBool("no-quiz")
	spec.IncludeHomework = !v.GetBool("no-homework")

	spec.Students = selectionOf(v.GetStringSlice("students"))
	spec.BehaviorItems = selectionOf(v.GetStringSlice("behaviors"))
	spec.QuizItems = selectionOf(v.GetStringSlice("quizzes"))
	spec.HomeworkItems = selectionOf(v.GetStringSlice("homework"))

	spec.SeparateSheets = v.GetBool("separate")
	spec.IncludeMaster = v.GetBool("master")
	spec.IncludeSummaries = v.GetBool("summaries")
	spec.IncludeStudentInfo = v.GetBool("student-info")

	return spec, validate.Struct(spec)
}

func selectionOf(values []string) model.Selection {
	if len(values) == 0 {
		return model.Selection{Mode: model.SelectAll}
	}
	return model.Selection{Mode: model.SelectSpecific, Values: values}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return &t, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := importer.Options{
		StudentSheet:    v.GetString("sheet"),
		ImportIncidents: v.GetBool("incidents"),
	}
	switch v.GetString("assume") {
	case "first-last":
		opts.Assume = func(string) importer.Assumption { return importer.AssumeFirstLast }
	case "full-name":
		opts.Assume = func(string) importer.Assumption { return importer.AssumeFullName }
	case "":
		opts.Assume = promptAssumption(ctx, cmd.InOrStdin(), cmd.ErrOrStderr())
	default:
		return fmt.Errorf("invalid --assume %q: want first-last or full-name", v.GetString("assume"))
	}

	rep, err := importer.New(db, slog.Default()).Import(ctx, args[0], opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "ImportDone", map[string]any{
		"Students":   rep.StudentsAdded,
		"Incidents":  rep.IncidentsAdded,
		"Duplicates": rep.DuplicatesSkipped,
	}))
	return nil
}

// promptAssumption asks on w and reads the answer from r. Anything but a
// yes reads column A as a full name.
func promptAssumption(ctx context.Context, r io.Reader, w io.Writer) func(string) importer.Assumption {
	return func(sheet string) importer.Assumption {
		fmt.Fprint(w, appI18n.Td(ctx, "AmbiguousColumnsPrompt", map[string]any{"Sheet": sheet}))
		answer, _ := bufio.NewReader(r).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes", "д", "да":
			return importer.AssumeFirstLast
		}
		return importer.AssumeFullName
	}
}

func runAttendance(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	start, err := parseDate(v.GetString("start"))
	if err != nil {
		return err
	}
	end, err := parseDate(v.GetString("end"))
	if err != nil {
		return err
	}
	if start == nil || end == nil {
		return errors.New("--start and --end are required")
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	ids := v.GetStringSlice("students")
	if err := checkStudents(ctx, cmd.ErrOrStderr(), db, ids); err != nil {
		return err
	}
	snap, err := db.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	out := v.GetString("output")
	x := export.NewExporter(slog.Default())
	if err := x.ExportAttendance(ctx, snap, ids, *start, *end, out); err != nil {
		return localizeExportError(ctx, cmd.ErrOrStderr(), out, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "AttendanceDone", map[string]any{"Path": out}))
	return nil
}

// checkStudents fails on the first id the store does not know.
func checkStudents(ctx context.Context, w io.Writer, db *store.Store, ids []string) error {
	for _, id := range ids {
		st, err := db.GetStudent(id)
		if err != nil {
			return fmt.Errorf("get student %s: %w", id, err)
		}
		if st == nil {
			fmt.Fprintln(w, appI18n.Td(ctx, "UnknownStudent", map[string]any{"ID": id}))
			return fmt.Errorf("unknown student %q", id)
		}
	}
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	total := 0
	for _, path := range args {
		n, err := loadSeedFile(ctx, db, path, v.GetBool("force"))
		if err != nil {
			return err
		}
		total += n
	}
	stored, err := db.EntryCount()
	if err != nil {
		return fmt.Errorf("count entries: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Tp(ctx, "LoadDone", total))
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Tp(ctx, "LogTotal", stored))
	return nil
}

// loadSeedFile loads one seed document. A file whose content was already
// loaded is skipped unless force is set.
func loadSeedFile(ctx context.Context, db *store.Store, path string, force bool) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	key := "seed_hash:" + path
	hash := sha256sum(data)
	storedHash, err := db.GetSetting(key)
	if err != nil {
		return 0, fmt.Errorf("check load status for %s: %w", path, err)
	}
	if storedHash == hash && !force {
		slog.Info("seed file unchanged, skipping", "path", path)
		return 0, nil
	}

	var seed model.Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	n, err := db.LoadSeed(ctx, seed)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	if err := db.SetSetting(key, hash); err != nil {
		return n, fmt.Errorf("record load for %s: %w", path, err)
	}
	slog.Info("loaded seed file", "path", path, "students", len(seed.Students), "entries", n)
	return n, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runStudents(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := db.StudentCount()
	if err != nil {
		return fmt.Errorf("count students: %w", err)
	}
	if count == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(ctx, "NoStudents"))
		return nil
	}
	snap, err := db.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	students, err := db.ListStudents()
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGROUP")
	for _, st := range students {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.ID, st.DisplayName(), snap.GroupName(st))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Tp(ctx, "StudentsTotal", count))
	return nil
}
