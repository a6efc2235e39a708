package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReply = `Here is the action:
{"wpqNumber": "WPQ-1", "auditTypeID": 900, "executionStatus": 0, "actionStatus": "1",
 "category": "PO Approval", "service": "Vendor Setup", "subject": "Reminder",
 "text": "<p>שלום</p>", "englishText": "<p>Hello</p>", "_MailID": "m-1"}
Let me know if you need anything else.`

func TestParseComposition(t *testing.T) {
	c, err := ParseComposition(validReply)
	require.NoError(t, err)
	assert.Equal(t, "WPQ-1", c.WPQNumber)
	assert.Equal(t, 900, c.AuditTypeID)
	assert.Equal(t, 1, c.ActionStatus)
	assert.Equal(t, "Reminder", c.Subject)
	assert.Equal(t, "m-1", c.MailID)
	assert.Equal(t, "<p>Hello</p>", c.Draft().EnglishText)
}

func TestParseCompositionMalformed(t *testing.T) {
	cases := map[string]string{
		"no json":          "I cannot help with that.",
		"broken json":      `{"wpqNumber": "WPQ-1", `,
		"missing field":    `{"wpqNumber": "WPQ-1", "auditTypeID": 700, "executionStatus": 0, "actionStatus": 1, "category": "c", "service": "s", "subject": "x", "text": "t"}`,
		"bad code":         `{"wpqNumber": "WPQ-1", "auditTypeID": "seven", "executionStatus": 0, "actionStatus": 1, "category": "c", "service": "s", "subject": "x", "text": "t", "englishText": "e"}`,
		"empty text":       `{"wpqNumber": "WPQ-1", "auditTypeID": 700, "executionStatus": 0, "actionStatus": 1, "category": "c", "service": "s", "subject": "x", "text": "", "englishText": "e"}`,
		"trailing garbage": `{} trailing }`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseComposition(raw)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}
