// Package analysis computes the lexical statistics shown next to a question
// and its answer. The heuristics are deliberately simple: whitespace
// tokenization, substring keyword matching and a capitalization test.
package analysis

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	topWordCount     = 5
	minKeywordLength = 3 // keywords must be longer than this
	longWordLength   = 8 // words longer than this count toward complexity
	maxEntities      = 5
	keywordTrimSet   = ".,!?;:\"()[]{}"
)

// QuestionType is a coarse guess at what kind of answer the text asks for.
type QuestionType string

const (
	TypeDefinition QuestionType = "definition"
	TypeProblem    QuestionType = "problem_solving"
	TypeReasoning  QuestionType = "reasoning"
	TypeComparison QuestionType = "comparison"
	TypeGeneral    QuestionType = "general"
)

// questionTypes is checked in order; the first group with a keyword found
// anywhere in the lowercased text wins.
var questionTypes = []struct {
	typ      QuestionType
	keywords []string
}{
	{TypeDefinition, []string{"what", "define", "explain"}},
	{TypeProblem, []string{"how", "calculate", "solve"}},
	{TypeReasoning, []string{"why", "reason"}},
	{TypeComparison, []string{"compare", "difference", "similar"}},
}

func (t QuestionType) Label() string {
	switch t {
	case TypeDefinition:
		return "Definition/Explanation"
	case TypeProblem:
		return "Problem-Solving"
	case TypeReasoning:
		return "Reasoning/Analysis"
	case TypeComparison:
		return "Comparison"
	default:
		return "General Question"
	}
}

func (t QuestionType) Description() string {
	switch t {
	case TypeDefinition:
		return "You want to understand a concept"
	case TypeProblem:
		return "You need help solving a problem"
	case TypeReasoning:
		return "You want to know the reasoning"
	case TypeComparison:
		return "You want to compare things"
	default:
		return "General inquiry"
	}
}

type Complexity string

const (
	ComplexitySimple   Complexity = "Simple"
	ComplexityModerate Complexity = "Moderate"
	ComplexityAdvanced Complexity = "Advanced"
)

// ComplexityFor maps a complexity score to its band.
func ComplexityFor(score float64) Complexity {
	switch {
	case score < 10:
		return ComplexitySimple
	case score < 20:
		return ComplexityModerate
	default:
		return ComplexityAdvanced
	}
}

// WordCount is one entry of the keyword frequency table.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Record is the statistics snapshot for one piece of text.
type Record struct {
	WordCount         int          `json:"word_count"`
	SentenceCount     int          `json:"sentence_count"`
	CharCount         int          `json:"char_count"`
	AvgWordLength     float64      `json:"avg_word_length"`
	TopWords          []WordCount  `json:"top_words"`
	QuestionType      QuestionType `json:"question_type"`
	QuestionLabel     string       `json:"question_label"`
	QuestionDesc      string       `json:"question_description"`
	ComplexityScore   float64      `json:"complexity_score"`
	ComplexityLabel   Complexity   `json:"complexity_label"`
	PotentialEntities []string     `json:"potential_entities"`
}

// Analyze computes the Record for text. Empty text yields zero values.
func Analyze(text string) Record {
	words := strings.Fields(text)

	r := Record{
		WordCount:     len(words),
		SentenceCount: countSentences(text),
		CharCount:     utf8.RuneCountInString(text),
		TopWords:      topWords(words),
		QuestionType:  classify(text),
	}
	r.QuestionLabel = r.QuestionType.Label()
	r.QuestionDesc = r.QuestionType.Description()

	if len(words) > 0 {
		letters, long := 0, 0
		for _, w := range words {
			n := utf8.RuneCountInString(w)
			letters += n
			if n > longWordLength {
				long++
			}
		}
		r.AvgWordLength = float64(letters) / float64(len(words))
		r.ComplexityScore = float64(long) * 100 / float64(len(words))
	}
	r.ComplexityLabel = ComplexityFor(r.ComplexityScore)
	r.PotentialEntities = entities(words)

	return r
}

func countSentences(text string) int {
	n := 0
	for _, s := range strings.Split(text, ".") {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

func topWords(words []string) []WordCount {
	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if utf8.RuneCountInString(w) <= minKeywordLength {
			continue
		}
		key := strings.Trim(strings.ToLower(w), keywordTrimSet)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	table := make([]WordCount, len(order))
	for i, w := range order {
		table[i] = WordCount{Word: w, Count: counts[w]}
	}
	// Stable so equal counts keep first-seen order.
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Count > table[j].Count
	})
	if len(table) > topWordCount {
		table = table[:topWordCount]
	}
	return table
}

func classify(text string) QuestionType {
	lower := strings.ToLower(text)
	for _, qt := range questionTypes {
		for _, kw := range qt.keywords {
			if strings.Contains(lower, kw) {
				return qt.typ
			}
		}
	}
	return TypeGeneral
}

func entities(words []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, w := range words {
		first, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(first) {
			continue
		}
		if lw := strings.ToLower(w); lw == "i" || lw == "a" {
			continue
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == maxEntities {
			break
		}
	}
	return out
}
