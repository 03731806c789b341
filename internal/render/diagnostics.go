package render

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Severity follows the LSP numbering.
type Severity int

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
	SeverityInfo    Severity = 3
	SeverityHint    Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Diagnostic is one compiler message. Line and Column are 1-based.
type Diagnostic struct {
	URI      string
	Line     int
	Column   int
	Severity Severity
	Code     string
	Message  string
}

// ParseDiagnostics reads a check result: an array of
// {"uri", "diagnostics": [{"range", "severity", "code", "message"}]}.
// ok is false when result does not have that shape.
func ParseDiagnostics(result json.RawMessage) (diags []Diagnostic, ok bool) {
	if len(result) == 0 {
		return nil, true
	}
	root := gjson.ParseBytes(result)
	if !root.IsArray() {
		return nil, false
	}

	ok = true
	root.ForEach(func(_, file gjson.Result) bool {
		if !file.Get("uri").Exists() || !file.Get("diagnostics").IsArray() {
			ok = false
			return false
		}
		uri := file.Get("uri").String()
		file.Get("diagnostics").ForEach(func(_, d gjson.Result) bool {
			sev := Severity(d.Get("severity").Int())
			if sev < SeverityError || sev > SeverityHint {
				sev = SeverityError
			}
			diags = append(diags, Diagnostic{
				URI:      uri,
				Line:     int(d.Get("range.start.line").Int()) + 1,
				Column:   int(d.Get("range.start.character").Int()) + 1,
				Severity: sev,
				Code:     d.Get("code").String(),
				Message:  d.Get("message").String(),
			})
			return true
		})
		return true
	})
	if !ok {
		return nil, false
	}

	slices.SortStableFunc(diags, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.URI, b.URI),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Column, b.Column),
		)
	})
	return diags, true
}

// Reporter writes check results to w.
type Reporter struct {
	w      io.Writer
	width  int
	styles styles
}

// NewReporter creates a reporter. Colors are used only when w supports them.
func NewReporter(w io.Writer, width int) *Reporter {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Reporter{
		w:      w,
		width:  width,
		styles: newStyles(lipgloss.NewRenderer(w)),
	}
}

// Check renders a check result and returns the number of errors in it.
// Results that are not diagnostics are printed as indented JSON.
func (r *Reporter) Check(result json.RawMessage) (int, error) {
	diags, ok := ParseDiagnostics(result)
	if !ok {
		return 0, r.JSON(result)
	}
	if len(diags) == 0 {
		_, err := fmt.Fprintln(r.w, r.styles.ok.Render("✓ no problems found"))
		return 0, err
	}

	var (
		sb      strings.Builder
		current string
		counts  = make(map[Severity]int)
	)
	for _, d := range diags {
		counts[d.Severity]++
		if d.URI != current {
			if current != "" {
				sb.WriteString("\n")
			}
			current = d.URI
			sb.WriteString(r.styles.file.Render(displayPath(d.URI)))
			sb.WriteString("\n")
		}

		line := fmt.Sprintf("  %s %s %s",
			r.styles.position.Render(fmt.Sprintf("%d:%d", d.Line, d.Column)),
			r.styles.severity[d.Severity].Render(d.Severity.String()),
			firstLine(d.Message),
		)
		if d.Code != "" {
			line += " " + r.styles.code.Render(d.Code)
		}
		sb.WriteString(TruncateANSI(line, r.width))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(r.styles.title.Render(summary(counts)))
	sb.WriteString("\n")

	_, err := io.WriteString(r.w, sb.String())
	return counts[SeverityError], err
}

// JSON writes raw as indented JSON, or verbatim when it is not valid JSON.
func (r *Reporter) JSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		_, err := fmt.Fprintln(r.w, "null")
		return err
	}
	if !gjson.ValidBytes(raw) {
		_, err := fmt.Fprintln(r.w, string(raw))
		return err
	}
	_, err := r.w.Write(pretty.Pretty(raw))
	return err
}

func summary(counts map[Severity]int) string {
	var parts []string
	for _, sev := range []Severity{SeverityError, SeverityWarning, SeverityInfo, SeverityHint} {
		n := counts[sev]
		if n == 0 {
			continue
		}
		label := sev.String()
		if n != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	return strings.Join(parts, ", ")
}

func displayPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return s
}
