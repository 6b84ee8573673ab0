package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"rana-image-tool/internal/domain/batch"
)

const (
	barWidth  = 30
	ruleWidth = 48
)

// Console is a terminal ProgressSink and Announcer. It is driven from a
// single goroutine, the pipeline's Coordinator.
type Console struct {
	out   io.Writer
	theme Theme
	now   func() time.Time

	label   string
	total   int
	done    int
	started time.Time
	drawn   bool
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer, theme Theme) *Console {
	return &Console{out: out, theme: theme, now: time.Now}
}

// Scanning announces the directory about to be walked.
func (c *Console) Scanning(root string) {
	c.printf("\n%s%s\n", c.theme.Muted("Scanning: "), c.theme.Link(root))
}

// Discovered reports how many files matched.
func (c *Console) Discovered(total int) {
	if total == 0 {
		c.printf("%s\n", c.theme.Warning("No matching files found."))
		return
	}
	c.printf("Found %s files.\n", c.theme.Success(fmt.Sprint(total)))
}

// NotFound reports a missing batch root.
func (c *Console) NotFound(root string) {
	c.printf("%s Directory not found: %s\n", c.theme.Error("Error:"), c.theme.Link(root))
}

func (c *Console) Start(label string, total int) {
	c.label = label
	c.total = total
	c.done = 0
	c.drawn = false
	c.started = c.now()
	if c.theme.Live() {
		c.draw()
	}
}

func (c *Console) Increment(batch.CompletionRecord) {
	c.done++
	if c.theme.Live() {
		c.draw()
	}
}

// Finish settles the progress line and prints the outcome, followed by one
// entry per failure.
func (c *Console) Finish(summary *batch.Summary) {
	c.draw()
	c.printf("\n")

	elapsed := c.theme.Bold(FormatElapsed(summary.Duration))
	if summary.Failed() == 0 {
		c.printf("%s Processed %d files in %s.\n", c.theme.Success("Success!"), summary.Succeeded, elapsed)
		return
	}

	c.printf("%s in %s.\n", c.theme.Warning(fmt.Sprintf("Completed with %d errors", summary.Failed())), elapsed)
	c.printf("%s\n", c.rule("Failures"))
	for _, f := range summary.Failures {
		c.printf("%s %s\n", c.theme.Label("File:"), c.theme.Link(f.FileName()))
		c.printf("%s %s\n\n", c.theme.Label("Error:"), c.theme.Error(f.Stage.Kind()+": "+f.Cause))
	}
}

func (c *Console) draw() {
	prefix := ""
	if c.drawn && c.theme.Live() {
		prefix = "\r"
	}
	c.drawn = true
	c.printf("%s%s", prefix, c.progressLine())
}

func (c *Console) progressLine() string {
	ratio := 1.0
	if c.total > 0 {
		ratio = float64(c.done) / float64(c.total)
	}
	filled := int(ratio * barWidth)
	bar := c.theme.Accent(strings.Repeat("━", filled)) + c.theme.Muted(strings.Repeat("━", barWidth-filled))

	return fmt.Sprintf("%s %s %3d%% %d/%d %s",
		c.theme.Success(c.label),
		bar,
		int(ratio*100),
		c.done, c.total,
		FormatElapsed(c.now().Sub(c.started)),
	)
}

func (c *Console) rule(title string) string {
	side := (ruleWidth - len(title) - 2) / 2
	line := strings.Repeat("─", side)
	return c.theme.Muted(line) + " " + c.theme.Error(title) + " " + c.theme.Muted(line)
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// FormatElapsed renders d as m:ss.ff, or h:mm:ss.ff from one hour up.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := int64(d / (10 * time.Millisecond))
	h := cs / 360000
	m := cs / 6000 % 60
	s := cs / 100 % 60
	f := cs % 100
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, f)
	}
	return fmt.Sprintf("%d:%02d.%02d", cs/6000, s, f)
}
