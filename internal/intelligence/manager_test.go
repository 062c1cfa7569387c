// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intelligence

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/feedback"
	"github.com/traylinx/localassist/internal/intelligence/prompt"
	"github.com/traylinx/localassist/internal/util"
)

const (
	coderModel    = "qwen2.5-coder:7b"
	thinkerModel  = "deepseek-r1:8b"
	smallModel    = "deepseek-r1:1.5b"
	codingQuestion = "Viết code python để sắp xếp một danh sách số nguyên"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.System.FeedbackDB = filepath.Join(dir, "data", "feedback.db")
	cfg.System.StateFile = filepath.Join(dir, "data", "learner_state.json")
	cfg.System.RLHFExportDir = filepath.Join(dir, "exports")
	cfg.Optimization.Feedback.CollectionProbability = 1
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	m := NewManager(cfg, config.DefaultModels(), config.DefaultTemplates(), nil)
	require.NoError(t, m.Initialize(context.Background()))
	return m
}

func score(v float64) *float64 { return &v }

func TestManager_OptimizeQuery(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	res := m.OptimizeQuery(codingQuestion)
	assert.NotEmpty(t, res.TemplateUsed)
	assert.Contains(t, res.OptimizedPrompt, codingQuestion)
	assert.Positive(t, res.TokenCount)
	assert.True(t, res.Analysis.RequiresCode)
	assert.Equal(t, res.TemplateUsed, m.TemplateUsed(codingQuestion))
	assert.Equal(t, prompt.DefaultTemplateName, m.TemplateUsed("never optimized"))
}

func TestManager_OptimizeQueryDisabled(t *testing.T) {
	m := newTestManager(t, testConfig(t))
	m.ToggleOptimization(false)

	res := m.OptimizeQuery(codingQuestion)
	assert.Equal(t, prompt.DefaultTemplateName, res.TemplateUsed)
	assert.Equal(t, codingQuestion, res.OptimizedPrompt)
	assert.Empty(t, m.SelectBestModel(codingQuestion, nil, nil))
	assert.False(t, m.ShouldRequestFeedback("conv"))
	assert.False(t, m.ProcessFeedback(context.Background(), feedback.Event{
		Query: codingQuestion, Responses: map[string]string{coderModel: "x"}, SelectedResponse: coderModel,
	}))
}

func TestManager_SelectBestModel(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	assert.Equal(t, coderModel, m.SelectBestModel(codingQuestion, nil, nil))

	a := m.Analyze(codingQuestion)
	assert.Equal(t, smallModel, m.SelectBestModel(codingQuestion, &a, []string{smallModel, "unknown"}))
	assert.Empty(t, m.SelectBestModel(codingQuestion, &a, []string{"unknown"}))
	assert.Empty(t, m.SelectBestModel(codingQuestion, &a, []string{}))
}

func TestManager_ShouldRequestFeedback(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	assert.True(t, m.ShouldRequestFeedback("conv_1"))
	assert.False(t, m.ShouldRequestFeedback("conv_1"))

	m.ToggleFeedbackCollection(false)
	assert.False(t, m.ShouldRequestFeedback("conv_2"))
}

func TestManager_ProcessFeedback(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	m := newTestManager(t, cfg)

	res := m.OptimizeQuery(codingQuestion)
	before := m.Optimizer().Weights()[thinkerModel]

	ok := m.ProcessFeedback(ctx, feedback.Event{
		ConversationID:   "conv_1",
		Query:            codingQuestion,
		Responses:        map[string]string{coderModel: "code", thinkerModel: "analysis"},
		SelectedResponse: thinkerModel,
		Score:            score(1),
	})
	require.True(t, ok)

	assert.NotEqual(t, before, m.Optimizer().Weights()[thinkerModel])
	perf := m.Selector().Performance()[res.TemplateUsed]
	assert.Equal(t, 1, perf.Count)

	total, err := m.Store().TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total, "one record plus one comparison")

	stats, err := m.Store().GetStats(ctx, StatFeedbackScore, 0)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1.0, stats[0].Value)
	assert.Equal(t, res.TemplateUsed, stats[0].Metadata["template"])

	_, err = os.Stat(cfg.System.StateFile)
	require.NoError(t, err, "learner state should be persisted")

	reloaded := newTestManager(t, cfg)
	assert.InDelta(t, m.Optimizer().Weights()[thinkerModel], reloaded.Optimizer().Weights()[thinkerModel], 1e-9)
	assert.Equal(t, 1, reloaded.Selector().Performance()[res.TemplateUsed].Count)
}

func TestManager_ProcessFeedbackWithoutScore(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, testConfig(t))

	require.True(t, m.ProcessFeedback(ctx, feedback.Event{
		Query:            "xin chào",
		Responses:        map[string]string{smallModel: "chào bạn"},
		SelectedResponse: smallModel,
	}))
	assert.Empty(t, m.Selector().Performance())
	stats, err := m.Store().GetStats(ctx, StatFeedbackScore, 0)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestManager_Stats(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, testConfig(t))
	now := time.Now()

	for i, s := range []*float64{score(0.9), score(0.7), score(0.5), score(0.3), score(0.1), nil} {
		require.NoError(t, m.Store().SaveFeedback(ctx, &feedback.Record{
			ID:               "fb_" + string(rune('a'+i)),
			Timestamp:        now,
			Query:            "q",
			Responses:        map[string]string{smallModel: "a"},
			SelectedResponse: smallModel,
			FeedbackScore:    s,
		}))
	}

	st := m.Stats(ctx)
	assert.True(t, st.Enabled)
	assert.Equal(t, FeedbackTotals{
		TotalSamples:    6,
		PositiveSamples: 2,
		NegativeSamples: 2,
		NeutralSamples:  3,
	}, st.FeedbackCollection)
	assert.Len(t, st.ModelPreferences, 4, "catalog models plus group discussion")
	assert.Contains(t, st.ModelStats, coderModel)
}

func TestManager_ExportFeedbackData(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	m := newTestManager(t, cfg)
	require.True(t, m.ProcessFeedback(ctx, feedback.Event{
		Query:            codingQuestion,
		Responses:        map[string]string{coderModel: "code"},
		SelectedResponse: coderModel,
		Score:            score(0.8),
	}))

	path := m.ExportFeedbackData(ctx, "")
	require.NotEmpty(t, path)
	assert.Equal(t, cfg.System.RLHFExportDir, filepath.Dir(path))

	path, n, err := m.ExportJSONL(ctx, t.TempDir(), feedback.ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, strings.HasSuffix(path, ".jsonl"))
}

func TestManager_ReadOnly(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sb, err := util.NewStateBoxAt(root, false)
	require.NoError(t, err)

	cfg := config.Default()
	writer := NewManager(cfg, config.DefaultModels(), config.DefaultTemplates(), sb)
	require.NoError(t, writer.Initialize(ctx))

	sb.SetReadOnly(true)
	m := NewManager(cfg, config.DefaultModels(), config.DefaultTemplates(), sb)
	require.NoError(t, m.Initialize(ctx))

	assert.False(t, m.ProcessFeedback(ctx, feedback.Event{
		Query: "q", Responses: map[string]string{smallModel: "a"}, SelectedResponse: smallModel,
	}))
	assert.Empty(t, m.ExportFeedbackData(ctx, ""))
	_, _, err = m.ExportJSONL(ctx, "", feedback.ExportOptions{})
	assert.ErrorIs(t, err, util.ErrReadOnlyMode)
	assert.NoError(t, m.SaveState())
}

func TestManager_ClearCachesAndReset(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, testConfig(t))

	m.OptimizeQuery(codingQuestion)
	require.True(t, m.ProcessFeedback(ctx, feedback.Event{
		Query:            codingQuestion,
		Responses:        map[string]string{coderModel: "a", smallModel: "b"},
		SelectedResponse: coderModel,
		Score:            score(1),
	}))

	m.ClearCaches()
	assert.Equal(t, prompt.DefaultTemplateName, m.TemplateUsed(codingQuestion))
	assert.Empty(t, m.Optimizer().PerformanceCache())

	m.ResetWeights()
	for name, w := range m.Optimizer().Weights() {
		assert.Equal(t, 1.0, w, name)
	}
}

func TestManager_ReloadCatalog(t *testing.T) {
	m := newTestManager(t, testConfig(t))

	models := config.DefaultModels()[:1]
	templates := []config.PromptTemplate{{Name: "only", Domains: []string{"general"}, Complexity: "medium", Template: "{query}"}}
	m.ReloadCatalog(models, templates)

	assert.Equal(t, []string{coderModel}, m.ModelNames())
	_, ok := m.Model(thinkerModel)
	assert.False(t, ok)
	spec, ok := m.Model(coderModel)
	require.True(t, ok)
	assert.NotEmpty(t, spec.SystemPrompt)
	assert.Len(t, m.Selector().Templates(), 1)
	assert.Empty(t, m.SelectBestModel(codingQuestion, nil, []string{thinkerModel}))
}
