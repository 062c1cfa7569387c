// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/assistant"
	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/feedback"
	"github.com/traylinx/localassist/internal/store"
	"github.com/traylinx/localassist/internal/util"
)

// keyValues collects repeated name=value flags.
type keyValues map[string]string

func (kv keyValues) String() string {
	parts := make([]string, 0, len(kv))
	for k, v := range kv {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (kv keyValues) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("expected model=response, got %q", s)
	}
	kv[strings.TrimSpace(name)] = value
	return nil
}

// optionalFloat is a float flag that remembers whether it was set.
type optionalFloat struct {
	value *float64
}

func (f *optionalFloat) String() string {
	if f.value == nil {
		return ""
	}
	return strconv.FormatFloat(*f.value, 'f', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("score must be between 0 and 1")
	}
	f.value = &v
	return nil
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stdout)
	return fs
}

func (a *app) printJSON(v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Errorf("failed to encode output: %v", err)
		return 1
	}
	fmt.Fprintln(a.stdout, string(data))
	return 0
}

// prompt writes question and reads one trimmed line from stdin.
func (a *app) prompt(reader *bufio.Reader, question string) string {
	fmt.Fprint(a.stdout, question)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return strings.TrimSpace(line)
}

func cmdInit(opts globalOptions, args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stdout)
	force := fs.Bool("force", false, "Overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	sb, err := openStateBox(opts)
	if err != nil {
		log.Errorf("failed to open state directory: %v", err)
		return 1
	}
	if sb.IsReadOnly() {
		log.Error(util.ErrReadOnlyMode)
		return 1
	}
	dir := sb.ResolvePath(config.Default().System.ConfigDir)
	written, err := config.WriteDefaults(dir, *force)
	if err != nil {
		log.Errorf("failed to write default configuration: %v", err)
		return 1
	}
	if len(written) == 0 {
		fmt.Fprintf(stdout, "Configuration already present in %s (use -force to overwrite)\n", dir)
		return 0
	}
	for _, p := range written {
		fmt.Fprintf(stdout, "wrote %s\n", p)
	}
	return 0
}

func cmdAsk(a *app, args []string) int {
	fs := newFlagSet(a, "ask")
	model := fs.String("model", "", "Use this model instead of automatic selection")
	group := fs.Bool("group", false, "Force a group discussion")
	noGroup := fs.Bool("no-group", false, "Never run a group discussion")
	system := fs.String("system", "", "System prompt override")
	temperature := fs.Float64("temperature", 0, "Sampling temperature")
	maxTokens := fs.Int("max-tokens", 0, "Maximum tokens to generate")
	rate := fs.Bool("rate", false, "Ask for a rating when feedback is requested")
	showAnalysis := fs.Bool("analysis", false, "Print the query analysis")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	q := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if q == "" {
		fmt.Fprintln(a.stdout, "Usage: localassist ask [options] <question>")
		return 2
	}

	opts := assistant.AskOptions{
		Model:        *model,
		SystemPrompt: *system,
		Temperature:  *temperature,
		MaxTokens:    *maxTokens,
	}
	switch {
	case *group:
		v := true
		opts.UseGroupDiscussion = &v
		if opts.Model == "" {
			opts.Model = a.manager.GroupDiscussion().Name
		}
	case *noGroup:
		v := false
		opts.UseGroupDiscussion = &v
	}

	ctx := context.Background()
	ans, err := a.session.Ask(ctx, q, opts)
	if err != nil {
		log.Errorf("ask failed: %v", err)
		return 1
	}

	fmt.Fprintf(a.stdout, "[%s]\n%s\n", ans.ModelUsed, ans.Response)
	if *showAnalysis && ans.Analysis != nil {
		a.printJSON(ans.Analysis)
	}
	if ans.RequestFeedback && *rate {
		reader := bufio.NewReader(a.stdin)
		answer := a.prompt(reader, "Đánh giá câu trả lời (0-1, Enter để bỏ qua): ")
		if answer == "" {
			return 0
		}
		var score optionalFloat
		if err := score.Set(answer); err != nil {
			log.Warnf("ignoring rating: %v", err)
			return 0
		}
		text := a.prompt(reader, "Nhận xét (tùy chọn): ")
		var textPtr *string
		if text != "" {
			textPtr = &text
		}
		if a.session.Feedback(ctx, q, ans.ModelUsed, score.value, textPtr) {
			fmt.Fprintln(a.stdout, "Cảm ơn phản hồi của bạn!")
		}
	}
	return 0
}

func cmdCompare(a *app, args []string) int {
	fs := newFlagSet(a, "compare")
	modelList := fs.String("models", "", "Comma separated models (default: whole catalog)")
	choose := fs.Bool("choose", false, "Pick the best answer interactively")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	q := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if q == "" {
		fmt.Fprintln(a.stdout, "Usage: localassist compare [-models a,b] [-choose] <question>")
		return 2
	}
	var models []string
	for _, m := range strings.Split(*modelList, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}

	ctx := context.Background()
	answers, err := a.session.Compare(ctx, q, models)
	if err != nil {
		log.Errorf("compare failed: %v", err)
		return 1
	}
	names := make([]string, 0, len(answers))
	for name := range answers {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		fmt.Fprintf(a.stdout, "%d. [%s]\n%s\n\n", i+1, name, answers[name])
	}
	if !*choose {
		return 0
	}

	reader := bufio.NewReader(a.stdin)
	pick, err := strconv.Atoi(a.prompt(reader, "Câu trả lời tốt nhất (số thứ tự): "))
	if err != nil || pick < 1 || pick > len(names) {
		fmt.Fprintln(a.stdout, "Bỏ qua phản hồi.")
		return 0
	}
	var score optionalFloat
	if s := a.prompt(reader, "Điểm (0-1, Enter để bỏ qua): "); s != "" {
		if err := score.Set(s); err != nil {
			log.Warnf("ignoring score: %v", err)
		}
	}
	if a.session.Feedback(ctx, q, names[pick-1], score.value, nil) {
		fmt.Fprintf(a.stdout, "Recorded preference for %s\n", names[pick-1])
	}
	return 0
}

func cmdFeedback(a *app, args []string) int {
	fs := newFlagSet(a, "feedback")
	q := fs.String("query", "", "The question that was asked")
	model := fs.String("model", "", "The preferred model")
	response := fs.String("response", "", "The preferred model's answer")
	conversation := fs.String("conversation", "", "Conversation id")
	text := fs.String("text", "", "Free-form comment")
	var score optionalFloat
	fs.Var(&score, "score", "Rating between 0 and 1")
	others := keyValues{}
	fs.Var(others, "alt", "Rejected answer as model=response (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *q == "" || *model == "" || *response == "" {
		fmt.Fprintln(a.stdout, "Usage: localassist feedback -query q -model m -response r [-score s] [-text t] [-alt model=response]")
		return 2
	}

	responses := map[string]string{*model: *response}
	for name, r := range others {
		responses[name] = r
	}
	ev := feedback.Event{
		ConversationID:   *conversation,
		Query:            *q,
		Responses:        responses,
		SelectedResponse: *model,
		Score:            score.value,
	}
	if *text != "" {
		ev.Text = text
	}
	if !a.manager.ProcessFeedback(context.Background(), ev) {
		log.Error("feedback was not recorded")
		return 1
	}
	fmt.Fprintln(a.stdout, "Feedback recorded.")
	return 0
}

func cmdStats(a *app, args []string) int {
	ctx := context.Background()
	fbStats, err := a.manager.Store().GetFeedbackStats(ctx)
	if err != nil {
		log.Errorf("failed to read feedback stats: %v", err)
		return 1
	}
	return a.printJSON(map[string]interface{}{
		"optimization":    a.manager.Stats(ctx),
		"feedback":        fbStats,
		"inference":       a.executor.Stats(),
		"discussions":     len(a.discussions.List()),
		"state_directory": a.sb.RootPath(),
	})
}

func cmdExport(a *app, args []string) int {
	fs := newFlagSet(a, "export")
	format := fs.String("format", feedback.FormatJSON, "json or jsonl")
	dir := fs.String("dir", "", "Output directory (default: configured export directory)")
	maxCount := fs.Int("max-count", 0, "Export at most this many entries (jsonl)")
	var minScore optionalFloat
	fs.Var(&minScore, "min-score", "Drop feedback below this score (jsonl)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	switch strings.ToLower(*format) {
	case feedback.FormatJSON:
		path := a.manager.ExportFeedbackData(ctx, *dir)
		if path == "" {
			log.Error("export failed")
			return 1
		}
		fmt.Fprintf(a.stdout, "exported to %s\n", path)
	case feedback.FormatJSONL:
		path, n, err := a.manager.ExportJSONL(ctx, *dir, feedback.ExportOptions{MinScore: minScore.value, MaxCount: *maxCount})
		if err != nil {
			log.Errorf("export failed: %v", err)
			return 1
		}
		fmt.Fprintf(a.stdout, "exported %d entries to %s\n", n, path)
	default:
		fmt.Fprintln(a.stdout, "format must be json or jsonl")
		return 2
	}
	return 0
}

func cmdBackup(a *app, args []string) int {
	fs := newFlagSet(a, "backup")
	out := fs.String("out", "", "Snapshot path (default: <db dir>/backups/feedback_backup_<time>.db)")
	archive := fs.Bool("archive", false, "Upload the snapshot to the configured object storage")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var archiver store.Archiver
	if *archive {
		oa, err := store.NewObjectArchiver(a.cfg.Archive)
		if err != nil {
			log.Errorf("archive unavailable: %v", err)
			return 1
		}
		archiver = oa
	}

	ctx := context.Background()
	path, err := a.manager.Store().Backup(ctx, *out)
	if err != nil {
		log.Errorf("backup failed: %v", err)
		return 1
	}
	fmt.Fprintf(a.stdout, "backup written to %s\n", path)
	if archiver != nil {
		location, err := archiver.Archive(ctx, path)
		if err != nil {
			log.Errorf("archive upload failed: %v", err)
			return 1
		}
		fmt.Fprintf(a.stdout, "archived to %s\n", location)
	}
	return 0
}

func cmdRestore(a *app, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.stdout, "Usage: localassist restore <file>")
		return 2
	}
	previous, err := a.manager.Store().Restore(context.Background(), args[0])
	if err != nil {
		log.Errorf("restore failed: %v", err)
		return 1
	}
	if previous != "" {
		fmt.Fprintf(a.stdout, "previous database saved to %s\n", previous)
	}
	fmt.Fprintf(a.stdout, "restored from %s\n", args[0])
	return 0
}

func cmdRepair(a *app, args []string) int {
	fs := newFlagSet(a, "repair")
	permissions := fs.Bool("permissions", true, "Also restrict permissions of state files")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := a.manager.Store().RepairSchema(context.Background()); err != nil {
		log.Errorf("repair failed: %v", err)
		return 1
	}
	fmt.Fprintln(a.stdout, "feedback database layout is up to date")
	if !*permissions {
		return 0
	}
	fixed, err := util.HardenPermissions(a.sb)
	if err != nil {
		log.Errorf("failed to fix permissions: %v", err)
		return 1
	}
	for _, r := range fixed {
		if r.WasCorrected {
			fmt.Fprintf(a.stdout, "restricted %s\n", r.Path)
		}
	}
	return 0
}

func cmdList(a *app, args []string) int {
	fs := newFlagSet(a, "list")
	conversation := fs.String("conversation", "", "Only this conversation")
	limit := fs.Int("limit", 20, "Maximum entries to print, 0 for all")
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	var entries []feedback.Entry
	if *conversation != "" {
		records, err := a.manager.Store().GetFeedbackByConversation(ctx, *conversation)
		if err != nil {
			log.Errorf("failed to list feedback: %v", err)
			return 1
		}
		comparisons, err := a.manager.Store().GetComparisonsByConversation(ctx, *conversation)
		if err != nil {
			log.Errorf("failed to list comparisons: %v", err)
			return 1
		}
		for _, r := range records {
			entries = append(entries, feedback.Entry{Type: feedback.TypeFeedback, Feedback: r})
		}
		for _, c := range comparisons {
			entries = append(entries, feedback.Entry{Type: feedback.TypePairwiseComparison, Comparison: c})
		}
	} else {
		all, err := a.manager.Store().GetAll(ctx)
		if err != nil {
			log.Errorf("failed to list feedback: %v", err)
			return 1
		}
		entries = all
	}
	if *limit > 0 && len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *asJSON {
		return a.printJSON(entries)
	}

	for _, e := range entries {
		switch {
		case e.Feedback != nil:
			score := "-"
			if e.Feedback.FeedbackScore != nil {
				score = strconv.FormatFloat(*e.Feedback.FeedbackScore, 'f', 2, 64)
			}
			fmt.Fprintf(a.stdout, "%s  %s  %-20s score=%s  %s\n", e.ID(), e.Feedback.Timestamp.Format("2006-01-02 15:04"),
				e.Feedback.SelectedResponse, score, util.Truncate(e.Feedback.Query, 60))
		case e.Comparison != nil:
			fmt.Fprintf(a.stdout, "%s  %s  %s > %s  %s\n", e.ID(), e.Comparison.Timestamp.Format("2006-01-02 15:04"),
				e.Comparison.ChosenModel, e.Comparison.RejectedModel, util.Truncate(e.Comparison.Query, 60))
		}
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "no feedback stored")
	}
	return 0
}

func cmdDelete(a *app, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.stdout, "Usage: localassist delete <id>")
		return 2
	}
	ctx := context.Background()
	id := args[0]
	deleted, err := a.manager.Store().DeleteFeedback(ctx, id)
	if err == nil && !deleted {
		deleted, err = a.manager.Store().DeleteComparison(ctx, id)
	}
	if err != nil {
		log.Errorf("delete failed: %v", err)
		return 1
	}
	if !deleted {
		fmt.Fprintf(a.stdout, "%s not found\n", id)
		return 1
	}
	fmt.Fprintf(a.stdout, "deleted %s\n", id)
	return 0
}

func cmdClear(a *app, args []string) int {
	fs := newFlagSet(a, "clear")
	confirm := fs.Bool("confirm", false, "Required: confirm deleting all feedback")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !*confirm {
		fmt.Fprintln(a.stdout, "Refusing to delete all feedback without -confirm")
		return 2
	}
	if err := a.manager.Store().ClearAll(context.Background()); err != nil {
		log.Errorf("clear failed: %v", err)
		return 1
	}
	fmt.Fprintln(a.stdout, "all feedback deleted")
	return 0
}

func cmdWeights(a *app, args []string) int {
	fs := newFlagSet(a, "weights")
	reset := fs.Bool("reset", false, "Reset every model to the default weight")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *reset {
		a.manager.ResetWeights()
		fmt.Fprintln(a.stdout, "weights reset")
	}
	return a.printJSON(a.manager.Optimizer().Stats())
}

func cmdModels(a *app, args []string) int {
	installed, err := a.executor.ListModels(context.Background())
	if err != nil {
		log.Errorf("failed to list installed models: %v", err)
		return 1
	}
	have := make(map[string]bool, len(installed))
	for _, name := range installed {
		have[name] = true
	}
	missing := 0
	for _, name := range a.manager.ModelNames() {
		status := "installed"
		if !have[name] {
			status = "missing (ollama pull " + name + ")"
			missing++
		}
		fmt.Fprintf(a.stdout, "%-24s %s\n", name, status)
	}
	if missing > 0 {
		return 1
	}
	return 0
}
