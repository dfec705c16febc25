package report

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownExporter renders a human-readable report.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(in Input, w io.Writer) error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Task report"
	}
	if _, err := fmt.Fprintf(w, "# %s\n\n", title); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", in.SessionID)
	_, _ = fmt.Fprintf(w, "**Task:** %s  \n", in.TaskID)
	_, _ = fmt.Fprintf(w, "**Generated:** %s\n\n", in.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	if req := strings.TrimSpace(in.Request); req != "" {
		_, _ = fmt.Fprintf(w, "## Request\n\n%s\n\n", req)
	}

	_, _ = fmt.Fprintf(w, "## Result\n\n%s\n\n", strings.TrimSpace(in.Content))

	if len(in.Steps) > 0 {
		_, _ = fmt.Fprintf(w, "## Steps\n\n")
		for _, s := range in.Steps {
			mark := " "
			if s.IsCompleted {
				mark = "x"
			}
			_, _ = fmt.Fprintf(w, "- [%s] %d/%d %s\n", mark, s.StepNumber, s.TotalSteps, s.DisplayText)
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(in.Resources) > 0 {
		_, _ = fmt.Fprintf(w, "## Resources\n\n")
		for _, r := range in.Resources {
			_, _ = fmt.Fprintf(w, "- **%s** (%s)", r.Title, r.Type)
			if d := strings.TrimSpace(r.Description); d != "" {
				_, _ = fmt.Fprintf(w, ": %s", d)
			}
			_, _ = fmt.Fprintln(w)
		}
	}
	return nil
}

func (e *MarkdownExporter) Extension() string { return "md" }

func (e *MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }
