package annotation

// Scored is a span with a model confidence.
type Scored struct {
	Span  Span    `json:"span"`
	Score float64 `json:"score"`
}

// Token is one tokenizer output with its lemma.
type Token struct {
	Span  Span   `json:"span"`
	Lemma string `json:"lemma"`
}

// Segmentation partitions a text into paragraphs and sentences.
type Segmentation struct {
	Paragraphs []Span `json:"paragraphs"`
	Sentences  []Span `json:"sentences"`
}

// TermAnalysis pairs a text's tokens with its term-relevance annotations.
type TermAnalysis struct {
	Tokens    []Token  `json:"tokens"`
	Relevance []Scored `json:"relevance"`
}

// Term is a token recognized as a term.
type Term struct {
	Span  Span    `json:"span"`
	Name  string  `json:"name"`
	Lemma string  `json:"lemma"`
	Score float64 `json:"score"`
}

// Definition is a definition context and the terms it defines. Every term
// span lies within Span.
type Definition struct {
	Span  Span    `json:"span"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Terms []Term  `json:"terms"`
}

// Obligation is a detected reporting obligation.
type Obligation struct {
	Span  Span    `json:"span"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Result is everything extracted from one document.
type Result struct {
	DocumentID  string       `json:"document_id"`
	State       State        `json:"state"`
	Text        Text         `json:"-"`
	Paragraphs  []Span       `json:"paragraphs"`
	Definitions []Definition `json:"definitions"`
	Occurrences []Term       `json:"occurrences"`
	Obligations []Obligation `json:"obligations"`
	Dropped     []Span       `json:"dropped,omitempty"`
}
