package util

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "AIza****wxyz", MaskKey("AIza1234wxyz"))
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("  hello there \nlast"))
	var prompt bytes.Buffer

	line, err := ReadLine(r, &prompt, "> ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", line)
	assert.Equal(t, "> ", prompt.String())

	line, err = ReadLine(r, &prompt, "> ")
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = ReadLine(r, &prompt, "> ")
	assert.ErrorIs(t, err, io.EOF)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "a long...", TruncateString("a long title here", 9))
	assert.Equal(t, "আমি...", TruncateString("আমিতুমিসে", 6))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestDelta(t *testing.T) {
	assert.Equal(t, "Hel", Delta("", "Hel"))
	assert.Equal(t, "lo", Delta("Hel", "Hello"))
	assert.Equal(t, "", Delta("Hello", "Hello"))
	assert.Equal(t, "Other", Delta("Hello", "Other"))
}
