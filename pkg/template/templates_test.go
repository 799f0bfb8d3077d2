package template

import (
	"testing"
	"time"

	"dispatch-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderChannel(t *testing.T) {
	e := NewEngine()
	set := map[string]domain.ChannelTemplate{
		domain.ChannelEmail: {
			Title: "Task for {{.Assignee}}",
			Body:  "Hi {{firstname .Assignee}}, you have {{plural .Count \"task\" \"tasks\"}} pending.",
			HTML:  "<p>Hi {{.Assignee}}</p>",
		},
	}
	vars := map[string]interface{}{"Assignee": "Amina Odhiambo", "Count": 2}

	got, err := e.RenderChannel(set, domain.ChannelEmail, vars)
	require.NoError(t, err)
	assert.Equal(t, "Task for Amina Odhiambo", got.Title)
	assert.Equal(t, "Hi Amina, you have 2 tasks pending.", got.Body)
	assert.Equal(t, "<p>Hi Amina Odhiambo</p>", got.HTML)
}

func TestRenderChannelMissingChannel(t *testing.T) {
	e := NewEngine()
	_, err := e.RenderChannel(map[string]domain.ChannelTemplate{}, domain.ChannelSMS, nil)
	assert.Error(t, err)
}

func TestRenderFallsBackOnMalformedTemplate(t *testing.T) {
	e := NewEngine()
	set := map[string]domain.ChannelTemplate{
		domain.ChannelSMS: {
			// Unterminated conditional: must not block delivery.
			Body: "{{if .Urgent}}URGENT {{.Name}}",
		},
	}
	got, err := e.RenderChannel(set, domain.ChannelSMS, map[string]interface{}{"Name": "Brian"})
	require.NoError(t, err)
	assert.Equal(t, "{{if .Urgent}}URGENT Brian", got.Body)
}

func TestSubstitute(t *testing.T) {
	vars := map[string]interface{}{
		"name":  "Cate",
		"count": 3,
	}
	assert.Equal(t, "Hello Cate, 3 items", Substitute("Hello {{name}}, {{count}} items", vars))
	assert.Equal(t, "Hello Cate", Substitute("Hello {{ .name }}", vars))
	// Unknown tokens stay put rather than rendering as empty.
	assert.Equal(t, "Hello {{missing}}", Substitute("Hello {{missing}}", vars))
}

func TestStringifyNeverLeaksGoSyntax(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "yes", Stringify(true))
	assert.Equal(t, "alpha", Stringify([]string{"alpha"}))
	assert.Equal(t, "3 items", Stringify([]string{"a", "b", "c"}))
	assert.Equal(t, "none", Stringify([]string{}))
	assert.NotContains(t, Stringify([]interface{}{"a", "b"}), "[")
}

func TestFormatDateUsesFixedZone(t *testing.T) {
	e := NewEngine()
	utc := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// Nairobi is UTC+3 year-round.
	assert.Equal(t, "02 Mar 2026 12:00", e.FormatDate(utc))
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 change", Pluralize(1, "change", "changes"))
	assert.Equal(t, "4 changes", Pluralize(4, "change", "changes"))
	assert.Equal(t, "0 changes", Pluralize(0, "change", "changes"))
}

func TestSummarizeList(t *testing.T) {
	assert.Equal(t, "none", SummarizeList(nil, "task", "tasks"))
	assert.Equal(t, "repair pump", SummarizeList([]string{"repair pump"}, "task", "tasks"))
	assert.Equal(t, "2 tasks", SummarizeList([]string{"a", "b"}, "task", "tasks"))
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Amina", FirstName("Amina Odhiambo"))
	assert.Equal(t, "Brian", FirstName("Brian"))
	assert.Equal(t, "", FirstName("  "))
}
