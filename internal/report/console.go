package report

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Severity tags one console line.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityPass  Severity = "PASS"
	SeverityFail  Severity = "FAIL"
	SeveritySkip  Severity = "SKIP"
	SeverityError Severity = "ERROR"
)

var tagColors = map[Severity]*color.Color{
	SeverityInfo:  color.New(color.FgBlue),
	SeverityPass:  color.New(color.FgGreen),
	SeverityFail:  color.New(color.FgRed),
	SeveritySkip:  color.New(color.FgYellow),
	SeverityError: color.New(color.FgRed, color.Bold),
}

// Console writes the human line log. Every line is written as soon as it is
// produced, to out (coloured when out is a terminal) and, when set, to a
// mirror file without colour and with a timestamp prefix.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	mirror io.Writer
	color  bool
	now    func() time.Time
}

// NewConsole returns a Console writing to out. mirror may be nil.
func NewConsole(out io.Writer, mirror io.Writer) *Console {
	useColor := false
	if f, ok := out.(*os.File); ok && f == os.Stdout {
		useColor = !color.NoColor
	}
	return &Console{out: out, mirror: mirror, color: useColor, now: time.Now}
}

// Discard returns a Console that drops everything.
func Discard() *Console {
	return &Console{out: io.Discard, now: time.Now}
}

func (c *Console) Info(format string, args ...any)  { c.Line(SeverityInfo, format, args...) }
func (c *Console) Pass(format string, args ...any)  { c.Line(SeverityPass, format, args...) }
func (c *Console) Fail(format string, args ...any)  { c.Line(SeverityFail, format, args...) }
func (c *Console) Skip(format string, args ...any)  { c.Line(SeveritySkip, format, args...) }
func (c *Console) Error(format string, args ...any) { c.Line(SeverityError, format, args...) }

// Line writes one tagged line.
func (c *Console) Line(sev Severity, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	c.mu.Lock()
	defer c.mu.Unlock()

	tag := "[" + string(sev) + "]"
	if c.color {
		if col, ok := tagColors[sev]; ok {
			tag = col.Sprint(tag)
		}
	}
	fmt.Fprintf(c.out, "%s %s\n", tag, msg) //nolint:errcheck

	if c.mirror != nil {
		fmt.Fprintf(c.mirror, "%s [%s] %s\n", c.now().UTC().Format(time.RFC3339), sev, msg) //nolint:errcheck
	}
}

// Writer exposes the console's primary writer for tables and banners.
func (c *Console) Writer() io.Writer {
	return c.out
}
