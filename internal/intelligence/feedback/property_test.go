package feedback

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/goccy/go-json"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ComparisonSynthesis checks that an event with n non-empty
// responses yields exactly n-1 comparisons against the selected text.
func TestProperty_ComparisonSynthesis(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("one comparison per rejected model", prop.ForAll(
		func(n, pick int) bool {
			responses := make(map[string]string, n)
			for i := 0; i < n; i++ {
				responses[fmt.Sprintf("model_%d", i)] = fmt.Sprintf("answer %d", i)
			}
			selected := fmt.Sprintf("model_%d", pick%n)

			repo := &memoryRepo{}
			c := NewCollector(feedbackSettings(), repo)
			id := c.CollectFeedback(context.Background(), Event{
				ConversationID:   "conv",
				Query:            "q",
				Responses:        responses,
				SelectedResponse: selected,
			})
			if id == "" {
				return false
			}

			want := n - 1
			if n < 2 {
				want = 0
			}
			if len(repo.comparisons) != want {
				return false
			}
			seen := map[string]bool{}
			for _, cmp := range repo.comparisons {
				if cmp.ChosenModel != selected || cmp.Chosen != responses[selected] ||
					cmp.RejectedModel == selected || seen[cmp.RejectedModel] {
					return false
				}
				seen[cmp.RejectedModel] = true
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

// TestProperty_ExportRoundTrip checks that an export holds every stored entry.
func TestProperty_ExportRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)
	dir := t.TempDir()

	properties.Property("export counts match stored entries", prop.ForAll(
		func(sizes []int) bool {
			ctx := context.Background()
			repo := &memoryRepo{}
			c := NewCollector(feedbackSettings(), repo)
			for i, n := range sizes {
				responses := map[string]string{}
				for m := 0; m < n; m++ {
					responses[fmt.Sprintf("m%d", m)] = "text"
				}
				c.CollectFeedback(ctx, Event{ConversationID: fmt.Sprint(i), Query: "q", Responses: responses, SelectedResponse: "m0"})
			}

			all, err := repo.GetAll(ctx)
			if err != nil {
				return false
			}
			path, err := c.ExportJSON(ctx, dir)
			if err != nil {
				return false
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return false
			}
			var doc Export
			if err := json.Unmarshal(data, &doc); err != nil {
				return false
			}
			return len(doc.Feedback)+len(doc.Comparisons) == len(all) && doc.Metadata.RecordCount == len(all)
		},
		gen.SliceOf(gen.IntRange(1, 4)),
	))

	properties.TestingRun(t)
}
