// Package contextbuilder assembles the prompt-ready context block from
// recent history, retrieved memories, and retrieved knowledge. The
// output shape is a stable contract consumed by downstream prompts, so
// the formatting here is deliberately rigid: fixed section headers,
// two-decimal relevance, single-newline joins, and a blank line after
// each section.
package contextbuilder

import (
	"fmt"
	"strings"

	"hivebrain/internal/model"
)

const knowledgeTruncateAt = 500

// Build is a pure function: no I/O, no state, infallible. Empty
// sections are omitted entirely; the current-message section is always
// present.
func Build(userMessage string, history []model.Turn, memories []*model.MemoryItem, knowledge []*model.KnowledgeItem, maxMemoryItems, maxKnowledgeItems int) string {
	var lines []string

	if len(history) > 0 {
		lines = append(lines, "=== RECENT CONVERSATION HISTORY ===")
		for _, turn := range history {
			if turn.UserMessage != "" {
				lines = append(lines, "**USER**: "+turn.UserMessage)
			}
			if turn.BotResponse != "" {
				lines = append(lines, "**ASSISTANT**: "+turn.BotResponse)
			}
		}
		lines = append(lines, "")
	}

	if len(memories) > 0 {
		if maxMemoryItems > 0 && len(memories) > maxMemoryItems {
			memories = memories[:maxMemoryItems]
		}
		lines = append(lines, "=== RELEVANT LONG-TERM MEMORIES ===")
		for i, m := range memories {
			header := fmt.Sprintf("**Memory %d**", i+1)
			if m.RelevanceScore != nil {
				header += fmt.Sprintf(" (relevance: %.2f)", *m.RelevanceScore)
			}
			lines = append(lines, header+":")
			lines = append(lines, "  User asked: "+m.UserMessage)
			lines = append(lines, "  Assistant replied: "+m.BotResponse)
		}
		lines = append(lines, "")
	}

	if len(knowledge) > 0 {
		if maxKnowledgeItems > 0 && len(knowledge) > maxKnowledgeItems {
			knowledge = knowledge[:maxKnowledgeItems]
		}
		lines = append(lines, "=== RELEVANT KNOWLEDGE ===")
		for i, k := range knowledge {
			score := 0.0
			if k.RelevanceScore != nil {
				score = *k.RelevanceScore
			}
			lines = append(lines, fmt.Sprintf("**Knowledge %d** (relevance: %.2f, source: %s):", i+1, score, k.Source))
			lines = append(lines, "  "+truncate(k.Content, knowledgeTruncateAt))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "=== CURRENT USER MESSAGE ===")
	lines = append(lines, userMessage)

	return strings.Join(lines, "\n")
}

func truncate(s string, at int) string {
	if len(s) <= at {
		return s
	}
	return s[:at] + "..."
}
