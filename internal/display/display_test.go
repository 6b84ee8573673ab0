package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rana-image-tool/internal/domain/batch"
)

func TestParseColorMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ColorMode
		wantErr bool
	}{
		{name: "empty defaults to auto", input: "", want: ColorAuto},
		{name: "auto", input: "auto", want: ColorAuto},
		{name: "always uppercase", input: "ALWAYS", want: ColorAlways},
		{name: "never trimmed", input: " never ", want: ColorNever},
		{name: "invalid", input: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseColorMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAccent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		r, g, b uint8
		wantErr bool
	}{
		{name: "lower case", input: "#0078d4", r: 0x00, g: 0x78, b: 0xd4},
		{name: "upper case", input: "#FF8800", r: 0xff, g: 0x88, b: 0x00},
		{name: "missing hash", input: "FF8800", wantErr: true},
		{name: "short form", input: "#f80", wantErr: true},
		{name: "not hex", input: "#zzzzzz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b, err := ParseAccent(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []uint8{tt.r, tt.g, tt.b}, []uint8{r, g, b})
		})
	}
}

func TestNewTheme(t *testing.T) {
	tests := []struct {
		name      string
		mode      ColorMode
		accent    string
		terminal  bool
		wantColor bool
		wantErr   bool
	}{
		{name: "auto on terminal", mode: ColorAuto, terminal: true, wantColor: true},
		{name: "auto on pipe", mode: ColorAuto, terminal: false},
		{name: "always on pipe", mode: ColorAlways, terminal: false, wantColor: true},
		{name: "never on terminal", mode: ColorNever, terminal: true},
		{name: "custom accent", mode: ColorAlways, accent: "#102030", wantColor: true},
		{name: "bad accent", mode: ColorAlways, accent: "blue", wantErr: true},
		{name: "bad mode", mode: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme, err := NewTheme(tt.mode, tt.accent, tt.terminal)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantColor, theme.Color())
			assert.Equal(t, tt.terminal, theme.Live())
		})
	}
}

func TestTheme_Paint(t *testing.T) {
	plain := Theme{}
	assert.Equal(t, "ok", plain.Success("ok"))

	colored, err := NewTheme(ColorAlways, "#102030", false)
	require.NoError(t, err)
	assert.Equal(t, "\033[32mok\033[0m", colored.Success("ok"))
	assert.Equal(t, "\033[38;2;16;32;48mbar\033[0m", colored.Accent("bar"))
	assert.Equal(t, "\033[34m\033[4mdir\033[0m", colored.Link("dir"))
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "0:00.00"},
		{in: 1234 * time.Millisecond, want: "0:01.23"},
		{in: 2*time.Minute + 5*time.Second + 70*time.Millisecond, want: "2:05.07"},
		{in: 59*time.Minute + 59*time.Second + 999*time.Millisecond, want: "59:59.99"},
		{in: time.Hour + 2*time.Minute + 3*time.Second, want: "1:02:03.00"},
		{in: -time.Second, want: "0:00.00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatElapsed(tt.in))
		})
	}
}

func newTestConsole(live bool) (*Console, *bytes.Buffer) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Theme{live: live})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }
	return c, &buf
}

func TestConsole_Announcements(t *testing.T) {
	c, buf := newTestConsole(false)

	c.Scanning("/photos")
	c.Discovered(0)
	c.Discovered(12)

	assert.Equal(t, "\nScanning: /photos\nNo matching files found.\nFound 12 files.\n", buf.String())

	buf.Reset()
	c.NotFound("/missing")
	assert.Equal(t, "Error: Directory not found: /missing\n", buf.String())
}

func TestConsole_Success(t *testing.T) {
	c, buf := newTestConsole(false)

	c.Start("[convert] From JPG to PNG", 2)
	c.Increment(batch.CompletionRecord{Path: "/a.jpg"})
	c.Increment(batch.CompletionRecord{Path: "/b.jpg"})
	assert.Empty(t, buf.String(), "a non-interactive console draws only once")

	c.Finish(&batch.Summary{Total: 2, Succeeded: 2, Duration: 1500 * time.Millisecond})

	out := buf.String()
	assert.Contains(t, out, "[convert] From JPG to PNG")
	assert.Contains(t, out, "100% 2/2")
	assert.Contains(t, out, "Success! Processed 2 files in 0:01.50.")
	assert.NotContains(t, out, "Failures")
	assert.NotContains(t, out, "\r")
}

func TestConsole_LiveRedraw(t *testing.T) {
	c, buf := newTestConsole(true)

	c.Start("Setting PPI", 4)
	c.Increment(batch.CompletionRecord{Path: "/a.png"})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Setting PPI"))
	assert.Contains(t, out, "  0% 0/4")
	assert.Contains(t, out, "\rSetting PPI")
	assert.Contains(t, out, " 25% 1/4")
}

func TestConsole_FailureReport(t *testing.T) {
	c, buf := newTestConsole(false)

	stageErr := batch.NewStageError(batch.StageTransform, "/photos/broken.png", errors.New("unexpected EOF"))
	c.Start("Setting PPI", 3)
	c.Increment(batch.CompletionRecord{Path: "/photos/broken.png", Err: stageErr})
	c.Finish(&batch.Summary{
		Total:     3,
		Succeeded: 2,
		Failures:  []batch.Failure{stageErr.Failure()},
		Duration:  2 * time.Second,
	})

	out := buf.String()
	assert.Contains(t, out, "Completed with 1 errors in 0:02.00.")
	assert.Contains(t, out, " Failures ")
	assert.Contains(t, out, "File: broken.png\n")
	assert.Contains(t, out, "Error: TransformFailure: unexpected EOF\n")
}

func TestPrintTable(t *testing.T) {
	table := NewTableData("Format", "Count")
	table.AlignRight(1)
	table.AddRow("JPEG", "3")
	table.AddRow("PNG", "12")
	table.AddRow("WebP", "0")
	table.SetFooter("Total", "15")

	assert.Equal(t, []string{"Format", "Count"}, table.Headers())
	require.Len(t, table.Rows(), 3)

	var buf bytes.Buffer
	PrintTable(&buf, table)

	out := buf.String()
	assert.Contains(t, out, "FORMAT")
	assert.Contains(t, out, "COUNT")
	assert.Contains(t, out, "JPEG")
	assert.Contains(t, out, "WebP")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "15")
}
