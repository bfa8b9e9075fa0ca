package shell

import (
	"fmt"
	"io"
	"strings"

	"github.com/codeready-toolchain/sherlog/pkg/incident"
)

// RenderIncidentList prints one row per incident.
func RenderIncidentList(w io.Writer, digests []incident.Digest) error {
	if len(digests) == 0 {
		_, err := fmt.Fprintln(w, "No incidents recorded.")
		return err
	}
	st := NewStyles(w)

	idWidth := len("ID")
	for _, d := range digests {
		idWidth = max(idWidth, len(d.ID))
	}
	// columns are padded by plain width; styled cells carry escape codes
	const statusWidth, severityWidth, createdWidth = 13, 8, 24

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %-*s  %-*s  %-*s  %s\n",
		idWidth, "ID", statusWidth, "STATUS", severityWidth, "SEVERITY", createdWidth, "CREATED", "NAME")
	for _, d := range digests {
		fmt.Fprintf(&b, "%-*s  %s  %s  %-*s  %s\n",
			idWidth, d.ID,
			padStyled(st.Status(string(d.Status)), string(d.Status), statusWidth),
			padStyled(st.Severity(string(d.Severity)), string(d.Severity), severityWidth),
			createdWidth, d.CreatedAt,
			d.Name)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func padStyled(styled, plain string, width int) string {
	if n := width - len(plain); n > 0 {
		return styled + strings.Repeat(" ", n)
	}
	return styled
}

// RenderIncident prints the full record in reading order: summary, open and
// closed hypotheses, findings, then the timeline.
func RenderIncident(w io.Writer, inc *incident.Incident) error {
	st := NewStyles(w)
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", st.Title.Render(inc.Name), st.Muted.Render(inc.ID))
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		st.Label.Render("Status:"), st.Status(string(inc.Metadata.Status)),
		st.Label.Render("Severity:"), st.Severity(string(inc.Metadata.Severity)),
		st.Label.Render("Investigator:"), inc.Metadata.Investigator)
	fmt.Fprintf(&b, "%s %s\n", st.Label.Render("Services:"), strings.Join(inc.Metadata.AffectedServices, ", "))
	fmt.Fprintf(&b, "%s %s\n", st.Label.Render("Created:"), inc.Metadata.CreatedAt)

	if inc.Summary.Text != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", st.Label.Render("TL;DR"), inc.Summary.Text)
	}

	if len(inc.Hypotheses) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.Label.Render("Hypotheses"))
		for _, h := range inc.Hypotheses {
			fmt.Fprintf(&b, "  %s %s [%s, %s confidence]\n", h.ID, h.Title, st.Status(string(h.Status)), h.Confidence)
			for _, e := range h.SupportingEvidence {
				fmt.Fprintf(&b, "      + %s\n", e)
			}
			for _, e := range h.CounterEvidence {
				fmt.Fprintf(&b, "      - %s\n", e)
			}
		}
	}

	if len(inc.RuledOut) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.Label.Render("Ruled out"))
		for _, r := range inc.RuledOut {
			fmt.Fprintf(&b, "  %s: %s %s\n", r.Hypothesis, r.Reason, st.Muted.Render(r.Timestamp))
		}
	}

	if len(inc.Findings) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.Label.Render("Findings"))
		for _, f := range inc.Findings {
			line := fmt.Sprintf("  %s %s [%s] %s", st.Muted.Render(f.Timestamp), f.Service, f.Type, f.Description)
			if f.Value != "" {
				line += " (" + f.Value + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	if len(inc.Timeline) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.Label.Render("Timeline"))
		for _, e := range inc.Timeline {
			line := fmt.Sprintf("  %s %-7s %s", st.Muted.Render(e.Timestamp), e.Source, e.Label)
			if e.Detail != "" {
				line += ": " + e.Detail
			}
			b.WriteString(line + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
