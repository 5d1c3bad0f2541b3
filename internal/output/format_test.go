package output_test

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/subpass/internal/output"
)

func TestFormatter_EmitJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatJSON, &buf)

	err := f.Emit(map[string]string{"key": "value"}, func(io.Writer) error {
		t.Fatal("text renderer called in JSON mode")
		return nil
	})
	require.NoError(t, err)

	var result map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "value", result["key"])
}

func TestFormatter_EmitText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatText, &buf)

	err := f.Emit(nil, func(w io.Writer) error {
		_, err := io.WriteString(w, "hello world\n")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", buf.String())
}

func TestFormatter_Printf(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatText, &buf)

	require.NoError(t, f.Printf("hello %s\n", "world"))
	assert.Equal(t, "hello world\n", buf.String())
	assert.Same(t, &buf, f.Writer())
}

func TestFormatter_AutoResolvesToJSONOffTerminal(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	f := output.NewFormatter(output.FormatAuto, &buf)
	assert.Equal(t, output.FormatJSON, f.Format())
	assert.True(t, f.IsJSON())

	assert.False(t, output.NewFormatter(output.FormatText, &buf).IsJSON())
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	assert.Equal(t, output.FormatText, output.DetectFormat(&buf, output.FormatText))
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, output.FormatAuto))
	assert.Equal(t, output.FormatJSON, output.DetectFormat(&buf, ""))
	assert.False(t, output.IsTerminal(&buf))
	assert.False(t, output.IsTerminal(nil))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected output.Format
	}{
		{"json", output.FormatJSON},
		{"JSON", output.FormatJSON},
		{" text ", output.FormatText},
		{"auto", output.FormatAuto},
		{"", output.FormatAuto},
		{"yaml", output.FormatAuto},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, output.ParseFormat(tt.input))
		})
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	output.Infof(&buf, "using %s", "sepolia")
	output.Warnf(&buf, "low gas")
	output.Successf(&buf, "done")

	assert.Equal(t, "ℹ️  using sepolia\n⚠️  low gas\n✅ done\n", buf.String())
}

func TestTable(t *testing.T) {
	t.Parallel()

	table := output.NewTable("READ", "VALUE")
	table.SetIndent("  ")
	table.AddRow("balance", "10.5 PYUSD")
	table.AddRow("entitlement")
	assert.Equal(t, 2, table.Len())

	want := "  READ         VALUE\n" +
		"  -----------  ----------\n" +
		"  balance      10.5 PYUSD\n" +
		"  entitlement\n"
	assert.Equal(t, want, table.String())

	assert.Empty(t, output.NewTable().String())
}

func TestTable_RuneWidths(t *testing.T) {
	t.Parallel()

	table := output.NewTable()
	table.AddRow("ü", "x")
	table.AddRow("ab", "y")
	assert.Equal(t, "ü   x\nab  y\n", table.String())
}
