package analysis

// complexityMargin is how far apart two complexity scores must be before the
// answer counts as harder or easier than the question.
const complexityMargin = 5

type Style string

const (
	StyleMoreTechnical Style = "more_technical"
	StyleSimpler       Style = "simpler"
	StyleMatches       Style = "matches"
)

func (s Style) Note() string {
	switch s {
	case StyleMoreTechnical:
		return "The answer uses more technical language"
	case StyleSimpler:
		return "The answer is explained simply"
	default:
		return "The answer matches your question's level"
	}
}

// Comparison relates an answer's Record to its question's Record.
type Comparison struct {
	// LengthRatio is the answer word count divided by the question word
	// count, truncated. It is 0 when the question has no words.
	LengthRatio int    `json:"length_ratio"`
	Style       Style  `json:"style"`
	Note        string `json:"note"`
}

func Compare(question, answer Record) Comparison {
	c := Comparison{Style: StyleMatches}
	if question.WordCount > 0 {
		c.LengthRatio = answer.WordCount / question.WordCount
	}
	switch {
	case answer.ComplexityScore > question.ComplexityScore+complexityMargin:
		c.Style = StyleMoreTechnical
	case answer.ComplexityScore < question.ComplexityScore-complexityMargin:
		c.Style = StyleSimpler
	}
	c.Note = c.Style.Note()
	return c
}
