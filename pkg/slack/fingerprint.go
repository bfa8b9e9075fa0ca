package slack

import (
	"regexp"

	goslack "github.com/slack-go/slack"
)

// fingerprintRe matches the tag left in every creation message. Slack may
// rewrap the surrounding text but never alters the id itself, so the id is
// compared exactly and only whitespace between the words is flexible.
var fingerprintRe = regexp.MustCompile(`(?i)sherlog\s+incident\s+([A-Za-z0-9_-]+)`)

// incidentFingerprint is embedded in the creation message so later
// notifications can find their thread even after a restart.
func incidentFingerprint(incidentID string) string {
	return "sherlog incident " + incidentID
}

// taggedIncidentIDs returns every incident id fingerprinted in msg, looking
// at the fallback text, section blocks and legacy attachments.
func taggedIncidentIDs(msg goslack.Message) []string {
	texts := []string{msg.Text}
	for _, b := range msg.Blocks.BlockSet {
		if sec, ok := b.(*goslack.SectionBlock); ok && sec.Text != nil {
			texts = append(texts, sec.Text.Text)
		}
	}
	for _, att := range msg.Attachments {
		texts = append(texts, att.Text, att.Fallback)
	}

	var ids []string
	for _, text := range texts {
		for _, m := range fingerprintRe.FindAllStringSubmatch(text, -1) {
			ids = append(ids, m[1])
		}
	}
	return ids
}

// mentionsIncident reports whether msg carries the fingerprint of incidentID.
// A prefix of a longer id does not count.
func mentionsIncident(msg goslack.Message, incidentID string) bool {
	for _, id := range taggedIncidentIDs(msg) {
		if id == incidentID {
			return true
		}
	}
	return false
}
