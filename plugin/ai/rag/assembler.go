// Package rag turns a user's earlier messages into background context for a prompt.
package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hrygo/intellichat/plugin/ai"
	"github.com/hrygo/intellichat/plugin/ai/vector"
)

const (
	// Instruction tells the model how to treat the block.
	Instruction = "Use the background below from my previous conversations only if it is relevant to the question. If it does not help, answer normally and do not mention it.\n\n"

	// Header introduces the numbered entries.
	Header = "Relevant information from previous conversations:\n\n"

	// QuestionPrefix separates the block from the user's text in a composed prompt.
	QuestionPrefix = "Question: "

	// DefaultMaxContextChars bounds a rendered block, in runes.
	DefaultMaxContextChars = 6000

	truncationSuffix = "..."
)

// AssembleRequest describes one retrieval.
type AssembleRequest struct {
	UserID int32
	Query  string
	// K is the number of entries wanted; <= 0 uses the index default.
	K int
	// ExcludeMessageIDs are dropped from the results, typically the message being answered.
	ExcludeMessageIDs []int32
}

// Assembled is a rendered context block and the records it was built from.
// Block is empty when nothing was retrieved.
type Assembled struct {
	Block   string
	Entries []vector.Result
}

// IsEmpty reports whether the prompt should go out without augmentation.
func (a *Assembled) IsEmpty() bool {
	return a == nil || a.Block == ""
}

// Assembler retrieves and renders context. It is safe for concurrent use.
type Assembler struct {
	embedder        ai.EmbeddingService
	index           vector.Index
	maxContextChars int
}

// NewAssembler creates an assembler. maxContextChars <= 0 uses DefaultMaxContextChars.
func NewAssembler(embedder ai.EmbeddingService, index vector.Index, maxContextChars int) *Assembler {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	return &Assembler{
		embedder:        embedder,
		index:           index,
		maxContextChars: maxContextChars,
	}
}

// Assemble embeds the query, fetches the user's nearest earlier messages and
// renders them. An empty partition is not an error. Embedding failures wrap
// ai.ErrEmbeddingUnavailable.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*Assembled, error) {
	vec, err := a.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	k := req.K
	if k <= 0 {
		k = vector.DefaultK
	}
	results, err := a.index.Query(ctx, vec, k+len(req.ExcludeMessageIDs), vector.ForUser(req.UserID))
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	entries := make([]vector.Result, 0, k)
	for _, r := range results {
		if slices.Contains(req.ExcludeMessageIDs, r.MessageID) {
			continue
		}
		entries = append(entries, r)
		if len(entries) == k {
			break
		}
	}

	block, used := Render(entries, a.maxContextChars)
	return &Assembled{Block: block, Entries: entries[:used]}, nil
}

// Render builds the block for entries, in the given order, within maxChars runes.
// Entries are kept while they fit; if not even the first fits, it is cut short and
// suffixed with "...". It returns the block and the number of entries used.
func Render(entries []vector.Result, maxChars int) (string, int) {
	if len(entries) == 0 {
		return "", 0
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	var b strings.Builder
	b.WriteString(Instruction)
	b.WriteString(Header)
	budget := maxChars - utf8.RuneCountInString(Instruction) - utf8.RuneCountInString(Header)

	used := 0
	for i, e := range entries {
		entry := formatEntry(i+1, e)
		n := utf8.RuneCountInString(entry)
		if n > budget {
			break
		}
		b.WriteString(entry)
		budget -= n
		used++
	}

	if used == 0 {
		entry, ok := truncateEntry(entries[0], budget)
		if !ok {
			return "", 0
		}
		b.WriteString(entry)
		used = 1
	}
	return b.String(), used
}

// ComposePrompt prepends a non-empty block to the user's text.
func ComposePrompt(block, userText string) string {
	if block == "" {
		return userText
	}
	return block + QuestionPrefix + userText
}

func formatEntry(n int, r vector.Result) string {
	return fmt.Sprintf("%d. [%s]: %s\n\n", n, authorLabel(r.IsUser), r.Content)
}

// truncateEntry fits the first entry into budget runes by shortening its content.
func truncateEntry(r vector.Result, budget int) (string, bool) {
	overhead := utf8.RuneCountInString(formatEntry(1, vector.Result{Record: vector.Record{IsUser: r.IsUser}}))
	room := budget - overhead - len(truncationSuffix)
	if room <= 0 {
		return "", false
	}
	content := []rune(r.Content)
	if len(content) > room {
		content = content[:room]
	}
	r.Content = string(content) + truncationSuffix
	return formatEntry(1, r), true
}

func authorLabel(isUser bool) string {
	if isUser {
		return "User"
	}
	return "AI"
}

