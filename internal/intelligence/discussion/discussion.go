// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package discussion runs multi-round discussions between catalog models
// and synthesizes a single answer from the final round.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/localassist/internal/config"
	"github.com/traylinx/localassist/internal/intelligence/query"
	"github.com/traylinx/localassist/internal/runtime/executor"
)

// RoleDeepThinking marks the preferred synthesis model.
const RoleDeepThinking = "deep_thinking"

const (
	defaultRole        = "assistant"
	roundTemperature   = 0.7
	roundMaxTokens     = 1024
	synthTemperature   = 0.5
	synthMaxTokens     = 1536
	suitableComplexity = 6.0
	shortQueryLimit    = 100
)

var (
	// ErrNoParticipants is returned when none of the requested models is
	// in the catalog.
	ErrNoParticipants = errors.New("no models available for discussion")
	// ErrNoResponses is returned when no participant answered the final round.
	ErrNoResponses = errors.New("no responses in final discussion round")
)

// Round holds the answers of one discussion round keyed by model.
type Round struct {
	Number    int               `json:"round"`
	Responses map[string]string `json:"responses"`
}

// Discussion is a completed discussion.
type Discussion struct {
	ID            string        `json:"id"`
	Query         string        `json:"query"`
	Rounds        []Round       `json:"log"`
	FinalResponse string        `json:"final_response"`
	ModelsUsed    []string      `json:"models_used"`
	Synthesizer   string        `json:"synthesizer"`
	Synthesized   bool          `json:"synthesized"`
	Timestamp     time.Time     `json:"timestamp"`
	Duration      time.Duration `json:"completion_time"`
}

// Options tunes a single discussion. Zero values use the defaults.
type Options struct {
	ID          string
	Models      []string
	Rounds      int
	Temperature float64
	MaxTokens   int
}

// Manager conducts discussions and keeps them in memory by id.
type Manager struct {
	gen   executor.Generator
	group config.GroupDiscussionConfig

	mu          sync.RWMutex
	models      []config.ModelSpec
	discussions map[string]*Discussion
}

// NewManager creates a discussion manager over the model catalog.
func NewManager(gen executor.Generator, models []config.ModelSpec, group config.GroupDiscussionConfig) *Manager {
	if group.DefaultRounds <= 0 {
		group.DefaultRounds = 2
	}
	return &Manager{
		gen:         gen,
		group:       group,
		models:      append([]config.ModelSpec(nil), models...),
		discussions: make(map[string]*Discussion),
	}
}

// SetModels replaces the model catalog.
func (m *Manager) SetModels(models []config.ModelSpec) {
	m.mu.Lock()
	m.models = append([]config.ModelSpec(nil), models...)
	m.mu.Unlock()
}

// Name returns the pseudo-model name discussions are attributed to.
func (m *Manager) Name() string {
	if m.group.Name == "" {
		return "group_discussion"
	}
	return m.group.Name
}

// Conduct runs a discussion on q. Each participant answers in every round;
// later rounds see the previous round's opinions. A participant that fails
// is skipped for that round.
//
// Parameters:
//   - ctx: Context for the generator calls
//   - q: The user query
//   - opts: Participants, rounds and sampling overrides
//
// Returns:
//   - *Discussion: The stored discussion
//   - error: ErrNoParticipants, ErrNoResponses or a context error
func (m *Manager) Conduct(ctx context.Context, q string, opts Options) (*Discussion, error) {
	start := time.Now()
	catalog := m.catalog()
	participants := selectParticipants(catalog, opts.Models)
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}

	rounds := opts.Rounds
	if rounds <= 0 {
		rounds = m.group.DefaultRounds
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = roundTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = roundMaxTokens
	}

	d := &Discussion{ID: opts.ID, Query: q}
	if d.ID == "" {
		d.ID = "disc_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	log.Infof("starting discussion %s with %d models over %d rounds", d.ID, len(participants), rounds)

	used := make(map[string]bool)
	prompt := q
	for r := 0; r < rounds; r++ {
		round := Round{Number: r + 1, Responses: make(map[string]string)}
		for _, spec := range participants {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := m.gen.Generate(ctx, executor.GenerateRequest{
				Model:       spec.Name,
				Prompt:      prompt,
				System:      expertSystemPrompt(spec, r),
				Temperature: temperature,
				MaxTokens:   maxTokens,
			})
			if err != nil {
				log.Errorf("discussion %s: %s failed in round %d: %v", d.ID, spec.Name, r+1, err)
				continue
			}
			round.Responses[spec.Name] = res.Response
			used[spec.Name] = true
		}
		d.Rounds = append(d.Rounds, round)
		if r < rounds-1 {
			prompt = nextRoundPrompt(q, round, catalog, r)
		}
	}

	final := d.Rounds[len(d.Rounds)-1]
	if len(final.Responses) == 0 {
		return nil, ErrNoResponses
	}

	d.Synthesizer = synthesisModel(catalog, final)
	res, err := m.gen.Generate(ctx, executor.GenerateRequest{
		Model:       d.Synthesizer,
		Prompt:      synthesisPrompt(q, final, catalog),
		System:      m.group.SystemPrompt,
		Temperature: synthTemperature,
		MaxTokens:   synthMaxTokens,
	})
	if err != nil || strings.TrimSpace(res.Response) == "" {
		log.Warnf("discussion %s: synthesis by %s failed, combining opinions: %v", d.ID, d.Synthesizer, err)
		d.FinalResponse = combineOpinions(final, catalog)
	} else {
		d.FinalResponse = res.Response
		d.Synthesized = true
	}

	for name := range used {
		d.ModelsUsed = append(d.ModelsUsed, name)
	}
	sort.Strings(d.ModelsUsed)
	d.Timestamp = time.Now()
	d.Duration = time.Since(start)

	m.mu.Lock()
	m.discussions[d.ID] = d
	m.mu.Unlock()
	return d, nil
}

// Get returns a stored discussion.
func (m *Manager) Get(id string) (*Discussion, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.discussions[id]
	return d, ok
}

// List returns the ids of stored discussions, oldest first.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Discussion, 0, len(m.discussions))
	for _, d := range m.discussions {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	ids := make([]string, len(all))
	for i, d := range all {
		ids[i] = d.ID
	}
	return ids
}

// Clear drops every stored discussion.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.discussions = make(map[string]*Discussion)
	m.mu.Unlock()
}

// Suitable reports whether q warrants a group discussion. With an analysis
// the query must be complex or need reasoning or creativity; without one a
// long question is enough.
func Suitable(q string, a *query.Analysis) bool {
	if a == nil {
		long := len([]rune(q)) > shortQueryLimit
		return long && (strings.Contains(q, "?") || strings.Contains(strings.ToLower(q), "tại sao"))
	}
	return a.Complexity > suitableComplexity || a.RequiresReasoning || a.RequiresCreativity
}

func (m *Manager) catalog() []config.ModelSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]config.ModelSpec(nil), m.models...)
}

func selectParticipants(catalog []config.ModelSpec, requested []string) []config.ModelSpec {
	if len(requested) == 0 {
		return catalog
	}
	var out []config.ModelSpec
	for _, name := range requested {
		if spec, ok := lookup(catalog, name); ok {
			out = append(out, spec)
		}
	}
	return out
}

func lookup(catalog []config.ModelSpec, name string) (config.ModelSpec, bool) {
	for _, spec := range catalog {
		if spec.Name == name {
			return spec, true
		}
	}
	return config.ModelSpec{}, false
}

func roleOf(catalog []config.ModelSpec, name string) string {
	if spec, ok := lookup(catalog, name); ok && spec.Role != "" {
		return spec.Role
	}
	return defaultRole
}

// synthesisModel picks the first deep_thinking model of the catalog, else
// the first participant of the final round in catalog order.
func synthesisModel(catalog []config.ModelSpec, final Round) string {
	for _, spec := range catalog {
		if spec.Role == RoleDeepThinking {
			return spec.Name
		}
	}
	for _, spec := range catalog {
		if _, ok := final.Responses[spec.Name]; ok {
			return spec.Name
		}
	}
	return ""
}

func expertSystemPrompt(spec config.ModelSpec, round int) string {
	role := spec.Role
	if role == "" {
		role = defaultRole
	}
	if round == 0 {
		return fmt.Sprintf("%s\n\nBạn đang tham gia thảo luận nhóm với vai trò chuyên gia %s. "+
			"Hãy trả lời câu hỏi dựa trên chuyên môn của bạn. "+
			"Tập trung vào những điểm mạnh của bạn như một chuyên gia %s.", spec.SystemPrompt, role, role)
	}
	return fmt.Sprintf("%s\n\nBạn đang tham gia thảo luận nhóm với vai trò chuyên gia %s. "+
		"Hãy xem xét các ý kiến từ các chuyên gia khác và bổ sung thông tin từ góc nhìn chuyên môn của bạn. "+
		"Tập trung vào việc cải thiện câu trả lời dựa trên chuyên môn %s.", spec.SystemPrompt, role, role)
}

// opinions renders round answers in catalog order under a per-role header.
func opinions(b *strings.Builder, round Round, catalog []config.ModelSpec, header string) {
	for _, spec := range catalog {
		text, ok := round.Responses[spec.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "\n--- %s %s ---\n%s\n", header, roleOf(catalog, spec.Name), text)
	}
}

func nextRoundPrompt(q string, round Round, catalog []config.ModelSpec, r int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Câu hỏi gốc: %s\n", q)
	fmt.Fprintf(&b, "\nVòng thảo luận %d đã hoàn thành. Dưới đây là ý kiến của các chuyên gia:\n", r+1)
	opinions(&b, round, catalog, "Ý kiến từ chuyên gia")
	fmt.Fprintf(&b, "\n\nVòng thảo luận %d:\n", r+2)
	b.WriteString("Hãy xem xét các ý kiến trên và bổ sung thông tin từ góc nhìn chuyên môn của bạn.\n")
	b.WriteString("Tập trung vào việc cải thiện và làm rõ các điểm chưa được đề cập hoặc cần bổ sung.")
	return b.String()
}

func synthesisPrompt(q string, final Round, catalog []config.ModelSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Câu hỏi: %s\n", q)
	b.WriteString("\nThảo luận nhóm đã diễn ra giữa các chuyên gia. Dưới đây là ý kiến cuối cùng của họ:\n")
	opinions(&b, final, catalog, "Chuyên gia")
	b.WriteString("\nHãy tổng hợp các ý kiến trên thành một câu trả lời toàn diện và cân bằng.")
	return b.String()
}

func combineOpinions(final Round, catalog []config.ModelSpec) string {
	var parts []string
	for _, spec := range catalog {
		text, ok := final.Responses[spec.Name]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("Từ góc nhìn %s:\n%s", roleOf(catalog, spec.Name), text))
	}
	return strings.Join(parts, "\n\n")
}
