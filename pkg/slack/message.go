package slack

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/sherlog/pkg/incident"
)

const maxBlockTextLength = 2900

var severityEmoji = map[incident.Severity]string{
	incident.SeverityCritical: ":rotating_light:",
	incident.SeverityHigh:     ":red_circle:",
	incident.SeverityMedium:   ":large_orange_circle:",
	incident.SeverityLow:      ":large_yellow_circle:",
}

func markdownSection(text string) *goslack.SectionBlock {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)
}

// BuildIncidentCreatedMessage returns the fallback text and Block Kit blocks
// announcing a new incident. The fallback carries the incident fingerprint.
func BuildIncidentCreatedMessage(inc *incident.Incident) (string, []goslack.Block) {
	emoji := severityEmoji[inc.Metadata.Severity]
	if emoji == "" {
		emoji = ":warning:"
	}

	header := fmt.Sprintf("%s *%s* (%s)", emoji, inc.Name, inc.Metadata.Severity)
	details := fmt.Sprintf("*Services:* %s\n*Investigator:* %s\n*Started:* %s",
		strings.Join(inc.Metadata.AffectedServices, ", "), inc.Metadata.Investigator, inc.Metadata.CreatedAt)

	blocks := []goslack.Block{markdownSection(header), markdownSection(details)}
	if inc.Summary.Text != "" {
		blocks = append(blocks, markdownSection(truncateForSlack(inc.Summary.Text)))
	}
	blocks = append(blocks, goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType, "`"+inc.ID+"`", false, false)))

	fallback := fmt.Sprintf("Investigation started: %s [%s]", inc.Name, incidentFingerprint(inc.ID))
	return fallback, blocks
}

// BuildRootCauseMessage returns the fallback text and blocks for a confirmed
// root cause, posted in the incident's thread.
func BuildRootCauseMessage(inc *incident.Incident, h *incident.Hypothesis) (string, []goslack.Block) {
	header := fmt.Sprintf(":white_check_mark: *Root cause confirmed:* %s", h.Title)

	blocks := []goslack.Block{markdownSection(header)}
	if len(h.SupportingEvidence) > 0 {
		var sb strings.Builder
		sb.WriteString("*Evidence:*")
		for _, e := range h.SupportingEvidence {
			sb.WriteString("\n• ")
			sb.WriteString(e)
		}
		blocks = append(blocks, markdownSection(truncateForSlack(sb.String())))
	}
	if n := len(inc.RuledOut); n > 0 {
		blocks = append(blocks, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("%d hypotheses ruled out", n), false, false)))
	}

	fallback := fmt.Sprintf("Root cause confirmed for %s: %s", inc.Name, h.Title)
	return fallback, blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	cut := maxBlockTextLength
	for cut > 0 && !utf8RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n\n_... (truncated)_"
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
