package slack

import (
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
)

func TestIncidentFingerprint(t *testing.T) {
	assert.Equal(t, "sherlog incident inc_lq2x8k_1a2b3c4d", incidentFingerprint("inc_lq2x8k_1a2b3c4d"))
}

func TestTaggedIncidentIDs(t *testing.T) {
	msg := goslack.Message{Msg: goslack.Msg{
		Text: "Investigation started: Checkout [sherlog incident inc_a1]",
		Blocks: goslack.Blocks{BlockSet: []goslack.Block{
			goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, "see Sherlog  Incident\ninc_b2", false, false), nil, nil),
			goslack.NewDividerBlock(),
		}},
		Attachments: []goslack.Attachment{
			{Text: "no tag here", Fallback: "sherlog incident inc_c3"},
			{},
		},
	}}
	assert.Equal(t, []string{"inc_a1", "inc_b2", "inc_c3"}, taggedIncidentIDs(msg))
	assert.Empty(t, taggedIncidentIDs(goslack.Message{}))
}

func TestMentionsIncident(t *testing.T) {
	tests := []struct {
		name string
		text string
		id   string
		want bool
	}{
		{name: "exact", text: "Investigation started: x [sherlog incident inc_1]", id: "inc_1", want: true},
		{name: "rewrapped whitespace", text: "sherlog\n incident   inc_1", id: "inc_1", want: true},
		{name: "longer id is a different incident", text: "sherlog incident inc_12", id: "inc_1", want: false},
		{name: "id compared case-sensitively", text: "sherlog incident INC_1", id: "inc_1", want: false},
		{name: "bare id without tag", text: "inc_1 looks bad", id: "inc_1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := goslack.Message{Msg: goslack.Msg{Text: tt.text}}
			assert.Equal(t, tt.want, mentionsIncident(msg, tt.id))
		})
	}
}
