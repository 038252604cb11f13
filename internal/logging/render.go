package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Renderf substitutes "{name}" placeholders in tmpl with the string form
// of the matching entry in fields, then logs the rendered message at the
// given level with fields attached as structured slog attributes.
//
// This exists because the reconciliation engine's log lines are a tested
// contract (§4 of SPEC_FULL.md): the exact rendered text, not a template,
// is what callers match against. Rendering eagerly means a JSON log
// line's "msg" field and a test's string comparison see identical text.
func Renderf(logger *slog.Logger, level slog.Level, tmpl string, fields map[string]any) {
	msg := render(tmpl, fields)
	attrs := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	logger.Log(nil, level, msg, attrs...) //nolint:staticcheck // nil context: call sites are not cancellable.
}

// Render substitutes "{name}" placeholders in tmpl using fields and
// returns the rendered string, without logging it. Exported so callers
// that need the exact contracted text (e.g. to compare it against an
// expected message in a test) can compute it without a logger.
func Render(tmpl string, fields map[string]any) string {
	return render(tmpl, fields)
}

func render(tmpl string, fields map[string]any) string {
	if len(fields) == 0 {
		return tmpl
	}
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		if tmpl[i] == '{' {
			if end := strings.IndexByte(tmpl[i:], '}'); end >= 0 {
				name := tmpl[i+1 : i+end]
				if v, ok := fields[name]; ok {
					fmt.Fprintf(&b, "%v", v)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}
