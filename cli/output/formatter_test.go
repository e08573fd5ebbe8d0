package output

import (
	"bytes"
	"testing"

	"github.com/debai-app/debai/internal/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFormatter(format Format) (*Formatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	f := NewFormatter(format, false, false)
	f.Writer = &out
	f.ErrWriter = &errOut
	return f, &out, &errOut
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"TABLE", FormatTable, false},
		{"json", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatter_PrintTable(t *testing.T) {
	data := TableData{
		Headers: []string{"ID", "CHATS"},
		Rows:    [][]string{{"s1", "2"}},
	}

	t.Run("table", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.PrintTable(data)
		assert.Contains(t, out.String(), "ID")
		assert.Contains(t, out.String(), "s1")
	})

	t.Run("no headers", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.NoHeaders = true
		f.PrintTable(data)
		assert.NotContains(t, out.String(), "CHATS")
		assert.Contains(t, out.String(), "s1")
	})

	t.Run("json rows", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatJSON)
		f.PrintTable(data)
		assert.JSONEq(t, `[{"ID":"s1","CHATS":"2"}]`, out.String())
	})

	t.Run("quiet", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.Quiet = true
		f.PrintTable(data)
		assert.Empty(t, out.String())
	})
}

func TestFormatter_PrintTranscript(t *testing.T) {
	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: "You are DebAI"},
		{Role: ai.RoleUser, Content: "hello"},
		{Role: ai.RoleAssistant, Content: "hi there"},
	}

	t.Run("table skips the system turn", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		require.NoError(t, f.PrintTranscript(messages))
		assert.Equal(t, "USER:\nhello\n\nASSISTANT:\nhi there\n\n", out.String())
	})

	t.Run("yaml keeps every turn", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatYAML)
		require.NoError(t, f.PrintTranscript(messages))
		assert.Contains(t, out.String(), "role: system")
		assert.Contains(t, out.String(), "content: hi there")
	})
}

func TestFormatter_Messages(t *testing.T) {
	f, out, errOut := newTestFormatter(FormatTable)

	f.PrintSuccess("done")
	f.PrintWarning("careful")
	f.PrintError("broken")
	f.PrintKeyValue("key", "value")

	assert.Equal(t, "done\nkey: value\n", out.String())
	assert.Equal(t, "Warning: careful\nError: broken\n", errOut.String())
}
