package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bookhabit/pkg/domain"
)

const (
	// InitialDays is the number of days produced by a first generation pass.
	InitialDays = 5
	// MaxPrinciples caps the key-principles list.
	MaxPrinciples = 5

	excerptLimit = 3000

	summaryMaxTokens    = 200
	principlesMaxTokens = 300
	dailyMaxTokens      = 500
	additionalMaxTokens = 800
)

// BookMeta carries the metadata the generator works from.
type BookMeta struct {
	Title       string
	Author      string
	Description string
}

// Result is a complete generation pass over one book.
type Result struct {
	Summary       string
	KeyPrinciples []string
	DailyContent  []domain.DayContent
}

// ContentGenerator turns book metadata (and an optional text excerpt) into a
// summary, key principles, and daily content. Backend failures never escape
// this type: any unreachable, erroring, or unparseable backend response is
// replaced wholesale by deterministic templated content, so callers always
// receive a usable Result.
type ContentGenerator struct {
	backend TextGenerator
	timeout time.Duration
}

// NewContentGenerator builds a generator on top of backend. A nil backend
// means "not configured" and yields templated content only. timeout bounds
// each backend call; zero falls back to 60s.
func NewContentGenerator(backend TextGenerator, timeout time.Duration) *ContentGenerator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ContentGenerator{backend: backend, timeout: timeout}
}

// Configured reports whether a generation backend is available.
func (g *ContentGenerator) Configured() bool {
	return g.backend != nil
}

// Generate produces a summary, 1..5 key principles, and an initial batch of
// daily content for the book. rawText, when non-empty, is truncated to a
// bounded excerpt before being sent to the backend.
func (g *ContentGenerator) Generate(ctx context.Context, meta BookMeta, rawText string) Result {
	meta = normalizeMeta(meta)
	if g.backend == nil {
		return g.fallbackResult(meta)
	}

	bookContext := buildBookContext(meta, rawText)

	var summaryText, principlesText, dailyText string
	var summaryErr, principlesErr, dailyErr error

	// Three independent calls; each failure is caught on its own and the
	// corresponding section falls back wholesale, never a partial merge.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		summaryText, summaryErr = g.call(egCtx, summaryPrompt(bookContext), summaryMaxTokens)
		return nil
	})
	eg.Go(func() error {
		principlesText, principlesErr = g.call(egCtx, principlesPrompt(bookContext), principlesMaxTokens)
		return nil
	})
	eg.Go(func() error {
		dailyText, dailyErr = g.call(egCtx, dailyPrompt(bookContext), dailyMaxTokens)
		return nil
	})
	_ = eg.Wait()

	result := Result{}

	if summaryErr == nil && strings.TrimSpace(summaryText) != "" {
		result.Summary = strings.TrimSpace(summaryText)
	} else {
		result.Summary = fallbackSummary(meta.Title, meta.Author)
	}

	if principlesErr == nil {
		result.KeyPrinciples = parsePrinciples(principlesText)
	}
	if len(result.KeyPrinciples) == 0 {
		result.KeyPrinciples = fallbackPrinciples()
	}

	if dailyErr == nil {
		if days, ok := parseDailyContent(dailyText); ok && len(days) > 0 {
			result.DailyContent = renumberDays(days, 1)
		}
	}
	if len(result.DailyContent) == 0 {
		result.DailyContent = fallbackDays(meta.Title)
	}

	return result
}

// Extend produces the next batch of daily content, numbered
// currentDays+1..currentDays+additional. It never renumbers existing days
// and always returns exactly `additional` entries.
func (g *ContentGenerator) Extend(ctx context.Context, meta BookMeta, currentDays, additional int) []domain.DayContent {
	meta = normalizeMeta(meta)
	if additional <= 0 {
		return nil
	}
	if g.backend == nil {
		return fallbackAdditionalDays(meta.Title, currentDays, additional)
	}

	text, err := g.call(ctx, additionalPrompt(meta, currentDays, additional), additionalMaxTokens)
	if err != nil {
		return fallbackAdditionalDays(meta.Title, currentDays, additional)
	}
	days, ok := parseDailyContent(text)
	if !ok || len(days) == 0 {
		return fallbackAdditionalDays(meta.Title, currentDays, additional)
	}

	days = renumberDays(days, currentDays+1)
	if len(days) > additional {
		days = days[:additional]
	}
	if missing := additional - len(days); missing > 0 {
		days = append(days, fallbackAdditionalDays(meta.Title, currentDays+len(days), missing)...)
	}
	return days
}

func (g *ContentGenerator) fallbackResult(meta BookMeta) Result {
	return Result{
		Summary:       fallbackSummary(meta.Title, meta.Author),
		KeyPrinciples: fallbackPrinciples(),
		DailyContent:  fallbackDays(meta.Title),
	}
}

func (g *ContentGenerator) call(ctx context.Context, prompt string, maxTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.backend.GenerateText(callCtx, prompt, maxTokens)
}

func normalizeMeta(meta BookMeta) BookMeta {
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Author = strings.TrimSpace(meta.Author)
	if meta.Author == "" {
		meta.Author = UnknownAuthor
	}
	return meta
}

func buildBookContext(meta BookMeta, rawText string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Book: %q by %s", meta.Title, meta.Author)
	if meta.Description != "" {
		fmt.Fprintf(&sb, "\nDescription: %s", meta.Description)
	}
	if excerpt := truncateRunes(rawText, excerptLimit); excerpt != "" {
		fmt.Fprintf(&sb, "\n\nBook Content (excerpt):\n%s", excerpt)
	}
	return sb.String()
}

func truncateRunes(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func summaryPrompt(bookContext string) string {
	return fmt.Sprintf("Based on the following book information, provide a concise but insightful summary (2-3 sentences):\n\n%s\n\nSummary:", bookContext)
}

func principlesPrompt(bookContext string) string {
	return fmt.Sprintf("%s\n\nBased on the book information above, identify 5 key principles or lessons that readers can apply to their daily lives. Format as a simple list:\n\nKey Principles:", bookContext)
}

func dailyPrompt(bookContext string) string {
	return fmt.Sprintf(`%s

Based on the book information above, create %d days of daily content that readers can use for personal development. Each day should have a lesson, exercise, affirmation, and thought. Format as JSON:

{
  "dailyContent": [
    {
      "day": 1,
      "lesson": "Today's lesson from the book",
      "exercise": "Practical exercise to apply the lesson",
      "affirmation": "Positive affirmation related to the lesson",
      "thought": "Reflective thought for the day"
    }
  ]
}`, bookContext, InitialDays)
}

func additionalPrompt(meta BookMeta, currentDays, additional int) string {
	return fmt.Sprintf(`Book: %q by %s
Current days of content: %d

Create %d additional days of daily content for personal development, numbered starting at day %d. Each day should have a lesson, exercise, affirmation, and thought. Format as JSON:

{
  "dailyContent": [
    {
      "day": %d,
      "lesson": "Day %d lesson from the book",
      "exercise": "Day %d practical exercise",
      "affirmation": "Day %d positive affirmation",
      "thought": "Day %d reflective thought"
    }
  ]
}`, meta.Title, meta.Author, currentDays, additional, currentDays+1,
		currentDays+1, currentDays+1, currentDays+1, currentDays+1, currentDays+1)
}

// parsePrinciples extracts up to MaxPrinciples list entries from free text,
// stripping numbering and bullet markers.
func parsePrinciples(text string) []string {
	principles := make([]string, 0, MaxPrinciples)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.ContainsAny(line, ".-•") {
			continue
		}
		line = stripListMarker(line)
		if line == "" {
			continue
		}
		principles = append(principles, line)
		if len(principles) == MaxPrinciples {
			break
		}
	}
	return principles
}

func stripListMarker(line string) string {
	trimmed := strings.TrimLeft(line, "0123456789")
	if trimmed != line {
		trimmed = strings.TrimPrefix(trimmed, ".")
		trimmed = strings.TrimPrefix(trimmed, ")")
		return strings.TrimSpace(trimmed)
	}
	line = strings.TrimPrefix(line, "-")
	line = strings.TrimPrefix(line, "•")
	return strings.TrimSpace(line)
}

type dailyContentEnvelope struct {
	DailyContent []domain.DayContent `json:"dailyContent"`
}

// parseDailyContent locates a JSON object embedded in free text via a greedy
// brace match and decodes its dailyContent array. Any deviation from the
// expected shape is a parse failure.
func parseDailyContent(text string) ([]domain.DayContent, bool) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return nil, false
	}
	var envelope dailyContentEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, false
	}
	return envelope.DailyContent, true
}

// extractJSONObject returns the substring from the first '{' to the last '}'.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// renumberDays forces contiguous day numbering starting at start and fills
// any blank field with its "No ... available" placeholder.
func renumberDays(days []domain.DayContent, start int) []domain.DayContent {
	out := make([]domain.DayContent, 0, len(days))
	for i, day := range days {
		day.Day = start + i
		out = append(out, day.FillMissing())
	}
	return out
}
