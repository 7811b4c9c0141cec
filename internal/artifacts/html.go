package artifacts

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/JaimeStill/lexis/internal/annotation"
)

var page = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<pre>{{range .Segments}}{{if .Mark}}<mark class="obligation">{{.Text}}</mark>{{else}}{{.Text}}{{end}}{{end}}</pre>
</body>
</html>
`))

type segment struct {
	Text string
	Mark bool
}

// RenderHTML renders text as an HTML page with each obligation span wrapped
// in a mark element. Overlapping spans are merged; invalid spans fail.
func RenderHTML(title, text string, obligations []annotation.Span) ([]byte, error) {
	t := annotation.NewText(text)
	for _, sp := range obligations {
		if err := sp.Validate(t.Len()); err != nil {
			return nil, fmt.Errorf("obligation %s: %w", sp, err)
		}
	}

	var segs []segment
	pos := 0
	for _, sp := range merge(obligations) {
		if sp.Begin > pos {
			segs = append(segs, segment{Text: t.Slice(annotation.Span{Begin: pos, End: sp.Begin})})
		}
		segs = append(segs, segment{Text: t.Slice(sp), Mark: true})
		pos = sp.End
	}
	if pos < t.Len() {
		segs = append(segs, segment{Text: t.Slice(annotation.Span{Begin: pos, End: t.Len()})})
	}

	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Title    string
		Segments []segment
	}{title, segs})
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	return buf.Bytes(), nil
}

// merge sorts spans and joins those that overlap or touch.
func merge(spans []annotation.Span) []annotation.Span {
	var out []annotation.Span
	for _, sp := range annotation.Sorted(spans) {
		if n := len(out); n > 0 && sp.Begin <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, sp.End)
			continue
		}
		out = append(out, sp)
	}
	return out
}
