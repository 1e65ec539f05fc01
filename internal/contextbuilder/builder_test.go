package contextbuilder

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"hivebrain/internal/model"
)

func score(v float64) *float64 { return &v }

func TestBuildFullShape(t *testing.T) {
	// One history turn, one memory, one short knowledge chunk.
	history := []model.Turn{{UserMessage: "Q", BotResponse: "A"}}
	memories := []*model.MemoryItem{{
		UserMessage:    "Q'",
		BotResponse:    "A'",
		RelevanceScore: score(0.873),
	}}
	knowledge := []*model.KnowledgeItem{{
		Content:        strings.Repeat("lorem", 24), // 120 chars, under the cap
		Source:         "s.txt",
		RelevanceScore: score(0.412),
	}}

	got := Build("Hi", history, memories, knowledge, 1, 1)

	want := strings.Join([]string{
		"=== RECENT CONVERSATION HISTORY ===",
		"**USER**: Q",
		"**ASSISTANT**: A",
		"",
		"=== RELEVANT LONG-TERM MEMORIES ===",
		"**Memory 1** (relevance: 0.87):",
		"  User asked: Q'",
		"  Assistant replied: A'",
		"",
		"=== RELEVANT KNOWLEDGE ===",
		"**Knowledge 1** (relevance: 0.41, source: s.txt):",
		"  " + strings.Repeat("lorem", 24),
		"",
		"=== CURRENT USER MESSAGE ===",
		"Hi",
	}, "\n")

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("context block mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	got := Build("Hi", nil, nil, nil, 5, 5)

	want := "=== CURRENT USER MESSAGE ===\nHi"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	for _, header := range []string{"HISTORY", "MEMORIES", "KNOWLEDGE"} {
		if strings.Contains(got, header) {
			t.Errorf("empty section %s should be omitted", header)
		}
	}
}

func TestBuildOmitsEmptyTurnLines(t *testing.T) {
	history := []model.Turn{{UserMessage: "only user", BotResponse: ""}}
	got := Build("Hi", history, nil, nil, 5, 5)

	if strings.Contains(got, "**ASSISTANT**") {
		t.Error("empty bot response line should be omitted")
	}
	if !strings.Contains(got, "**USER**: only user") {
		t.Error("user line missing")
	}
}

func TestBuildOmitsAbsentRelevance(t *testing.T) {
	memories := []*model.MemoryItem{{UserMessage: "u", BotResponse: "b"}}
	got := Build("Hi", nil, memories, nil, 5, 5)

	if strings.Contains(got, "relevance") {
		t.Errorf("relevance clause should be omitted without a score:\n%s", got)
	}
	if !strings.Contains(got, "**Memory 1**:") {
		t.Errorf("memory header missing:\n%s", got)
	}
}

func TestBuildRendersZeroRelevance(t *testing.T) {
	// A score of exactly 0.0 (antiparallel vectors) is a real score,
	// not an absent one.
	memories := []*model.MemoryItem{{UserMessage: "u", BotResponse: "b", RelevanceScore: score(0)}}
	got := Build("Hi", nil, memories, nil, 5, 5)

	if !strings.Contains(got, "**Memory 1** (relevance: 0.00):") {
		t.Errorf("zero relevance should render, not be dropped:\n%s", got)
	}
}

func TestBuildTruncatesLongKnowledge(t *testing.T) {
	long := strings.Repeat("x", 700)
	knowledge := []*model.KnowledgeItem{{Content: long, Source: "big.txt", RelevanceScore: score(0.9)}}

	got := Build("Hi", nil, nil, knowledge, 5, 5)

	if !strings.Contains(got, "  "+strings.Repeat("x", 500)+"...") {
		t.Error("knowledge should be truncated at 500 chars with ... suffix")
	}
	if strings.Contains(got, strings.Repeat("x", 501)) {
		t.Error("more than 500 content chars leaked through")
	}
}

func TestBuildRespectsItemCaps(t *testing.T) {
	memories := []*model.MemoryItem{
		{UserMessage: "m1", BotResponse: "r1", RelevanceScore: score(0.9)},
		{UserMessage: "m2", BotResponse: "r2", RelevanceScore: score(0.8)},
		{UserMessage: "m3", BotResponse: "r3", RelevanceScore: score(0.7)},
	}
	got := Build("Hi", nil, memories, nil, 2, 5)

	if strings.Contains(got, "m3") {
		t.Error("memories beyond the cap should be dropped")
	}
	if !strings.Contains(got, "**Memory 2**") || strings.Contains(got, "**Memory 3**") {
		t.Error("expected exactly two memory entries")
	}
}

func TestBuildRoundsHalfToEven(t *testing.T) {
	memories := []*model.MemoryItem{{UserMessage: "u", BotResponse: "b", RelevanceScore: score(0.875)}}
	got := Build("Hi", nil, memories, nil, 5, 5)

	// %.2f rounds half to even: 0.875 -> 0.88.
	if !strings.Contains(got, "(relevance: 0.88)") {
		t.Errorf("expected half-to-even rounding, got:\n%s", got)
	}
}
