package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/JaimeStill/lexis/pkg/formatting"
)

// Services are the external NLP endpoints the extractor drives.
type Services interface {
	Convert(ctx context.Context, content []byte, contentType string) (string, error)
	Segment(ctx context.Context, text string) (Segmentation, error)
	Definitions(ctx context.Context, text string, sentences []Span) ([]Scored, error)
	Terms(ctx context.Context, text string) (TermAnalysis, error)
}

// ObligationFinder detects reporting obligations.
type ObligationFinder interface {
	Obligations(ctx context.Context, text string) ([]Scored, error)
}

// Options bound the extractor's work per document.
type Options struct {
	MaxContentBytes    int64
	MaxDefinitionBytes int64
}

// Input is one document to annotate. When Plaintext is set, conversion is
// skipped.
type Input struct {
	DocumentID  string
	Content     []byte
	ContentType string
	Plaintext   string
}

// Extractor runs documents through conversion, segmentation, definition
// detection, and term extraction.
type Extractor struct {
	svc         Services
	obligations ObligationFinder
	opts        Options
	logger      *slog.Logger
}

// NewExtractor creates an Extractor. obligations may be nil.
func NewExtractor(svc Services, obligations ObligationFinder, opts Options, logger *slog.Logger) *Extractor {
	return &Extractor{
		svc:         svc,
		obligations: obligations,
		opts:        opts,
		logger:      logger.With("system", "extractor"),
	}
}

// Extract advances in from StateRaw to StateTermsFound. Failures return a
// *StageError naming the last state reached; nothing is partially returned.
func (x *Extractor) Extract(ctx context.Context, in Input) (*Result, error) {
	res := &Result{DocumentID: in.DocumentID, State: StateRaw}
	halt := func(err error) (*Result, error) {
		return nil, &StageError{DocumentID: in.DocumentID, State: res.State, Err: err}
	}

	size := int64(len(in.Content))
	if size == 0 {
		size = int64(len(in.Plaintext))
	}
	if x.opts.MaxContentBytes > 0 && size > x.opts.MaxContentBytes {
		return halt(fmt.Errorf("%w: %s exceeds %s", ErrOversized,
			formatting.FormatBytes(size, 1), formatting.FormatBytes(x.opts.MaxContentBytes, 1)))
	}

	plain := in.Plaintext
	if plain == "" {
		var err error
		plain, err = x.svc.Convert(ctx, in.Content, in.ContentType)
		if err != nil {
			return halt(fmt.Errorf("convert: %w", err))
		}
	}
	if plain == "" {
		return halt(fmt.Errorf("convert: %w", ErrEmptyPayload))
	}
	res.Text = NewText(plain)
	res.State = StateConverted

	seg, err := x.svc.Segment(ctx, plain)
	if err != nil {
		return halt(fmt.Errorf("segment: %w", err))
	}
	if len(seg.Paragraphs) == 0 {
		return halt(fmt.Errorf("segment: %w", ErrEmptyPayload))
	}
	if err := validateAll(res.Text.Len(), seg.Paragraphs, seg.Sentences); err != nil {
		return halt(fmt.Errorf("segment: %w", err))
	}
	res.Paragraphs = Sorted(seg.Paragraphs)
	res.State = StateSegmented

	sentences := seg.Sentences
	if len(sentences) == 0 {
		sentences = res.Paragraphs
	}
	found, err := x.svc.Definitions(ctx, plain, Sorted(sentences))
	if err != nil {
		return halt(fmt.Errorf("definitions: %w", err))
	}
	for _, d := range found {
		if err := d.Span.Validate(res.Text.Len()); err != nil {
			return halt(fmt.Errorf("definitions: %w", err))
		}
	}
	res.Definitions, res.Dropped = x.definitions(res.Text, Widen(res.Paragraphs, found))
	for _, sp := range res.Dropped {
		x.logger.Warn("definition dropped",
			"document_id", in.DocumentID,
			"span", sp.String(),
			"bytes", res.Text.ByteLen(sp),
			"limit", x.opts.MaxDefinitionBytes,
		)
	}
	res.State = StateDefinitionsFound

	analysis, err := x.svc.Terms(ctx, plain)
	if err != nil {
		return halt(fmt.Errorf("terms: %w", err))
	}
	if len(analysis.Tokens) == 0 {
		return halt(fmt.Errorf("terms: %w", ErrEmptyPayload))
	}
	for _, tk := range analysis.Tokens {
		if err := tk.Span.Validate(res.Text.Len()); err != nil {
			return halt(fmt.Errorf("terms: %w", err))
		}
	}
	terms := MatchTerms(res.Text, analysis)
	for i := range res.Definitions {
		res.Definitions[i].Terms = TermsWithin(res.Definitions[i].Span, terms)
	}
	res.Occurrences = terms

	if x.obligations != nil {
		obs, err := x.obligations.Obligations(ctx, plain)
		if err != nil {
			return halt(fmt.Errorf("obligations: %w", err))
		}
		for _, o := range obs {
			if err := o.Span.Validate(res.Text.Len()); err != nil {
				return halt(fmt.Errorf("obligations: %w", err))
			}
			res.Obligations = append(res.Obligations, Obligation{
				Span:  o.Span,
				Text:  res.Text.Slice(o.Span),
				Score: o.Score,
			})
		}
	}
	res.State = StateTermsFound

	x.logger.Info("document extracted",
		"document_id", in.DocumentID,
		"definitions", len(res.Definitions),
		"occurrences", len(res.Occurrences),
		"obligations", len(res.Obligations),
	)
	return res, nil
}

func (x *Extractor) definitions(text Text, found []Scored) (kept []Definition, dropped []Span) {
	for _, d := range found {
		if x.opts.MaxDefinitionBytes > 0 && int64(text.ByteLen(d.Span)) > x.opts.MaxDefinitionBytes {
			dropped = append(dropped, d.Span)
			continue
		}
		kept = append(kept, Definition{
			Span:  d.Span,
			Text:  text.Slice(d.Span),
			Score: d.Score,
		})
	}
	return kept, dropped
}

// Widen replaces each definition sentence with the paragraph that starts at
// the same offset and covers it, if any. Definitions that widen to the same
// span are merged, keeping the highest score. The result is sorted.
func Widen(paragraphs []Span, sentences []Scored) []Scored {
	byBegin := make(map[int]Span, len(paragraphs))
	for _, p := range paragraphs {
		if cur, ok := byBegin[p.Begin]; !ok || p.End > cur.End {
			byBegin[p.Begin] = p
		}
	}

	best := make(map[Span]float64, len(sentences))
	for _, s := range sentences {
		sp := s.Span
		if p, ok := byBegin[sp.Begin]; ok && p.Contains(sp) {
			sp = p
		}
		if score, ok := best[sp]; !ok || s.Score > score {
			best[sp] = s.Score
		}
	}

	out := make([]Scored, 0, len(best))
	for _, sp := range slices.SortedFunc(maps.Keys(best), Compare) {
		out = append(out, Scored{Span: sp, Score: best[sp]})
	}
	return out
}

// MatchTerms returns the tokens that carry a relevance annotation with
// exactly the token's offsets. Overlapping but unequal annotations do not
// match. The result is sorted by span.
func MatchTerms(text Text, a TermAnalysis) []Term {
	relevance := make(map[Span]float64, len(a.Relevance))
	for _, r := range a.Relevance {
		if prev, ok := relevance[r.Span]; ok {
			relevance[r.Span] = max(prev, r.Score)
			continue
		}
		relevance[r.Span] = r.Score
	}

	seen := make(map[Span]bool, len(a.Tokens))
	var out []Term
	for _, tk := range a.Tokens {
		score, ok := relevance[tk.Span]
		if !ok || seen[tk.Span] {
			continue
		}
		seen[tk.Span] = true
		out = append(out, Term{
			Span:  tk.Span,
			Name:  text.Slice(tk.Span),
			Lemma: tk.Lemma,
			Score: score,
		})
	}
	slices.SortFunc(out, func(a, b Term) int { return Compare(a.Span, b.Span) })
	return out
}

// TermsWithin returns the terms lying entirely inside def.
func TermsWithin(def Span, terms []Term) []Term {
	var out []Term
	for _, t := range terms {
		if def.Contains(t.Span) {
			out = append(out, t)
		}
	}
	return out
}

func validateAll(n int, groups ...[]Span) error {
	for _, g := range groups {
		for _, sp := range g {
			if err := sp.Validate(n); err != nil {
				return err
			}
		}
	}
	return nil
}
