package msg

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Out receives every message. Tests swap it for a buffer.
var Out io.Writer = color.Output

// Verbose enables Trace output.
var Verbose bool

func emit(level string, format string, a ...any) {
	fmt.Fprintf(Out, "%s: %s\n", level, fmt.Sprintf(format, a...))
}

func Error(format string, a ...any) {
	emit(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	emit(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	emit(color.RedString("fatal"), format, a...)
	os.Exit(1)
}

func Info(format string, a ...any) {
	emit(color.HiGreenString("info"), format, a...)
}

// Trace prints only when Verbose is set
func Trace(format string, a ...any) {
	if !Verbose {
		return
	}
	emit(color.HiBlackString("trace"), format, a...)
}

// Step prints a build step line such as "CC lib/src/a.c"
func Step(verb, subject string) {
	fmt.Fprintf(Out, "%s %s\n", color.HiCyanString(verb), subject)
}

// Command renders an argument vector the way a shell user would type it
func Command(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			quoted[i] = fmt.Sprintf("%q", arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}

type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	var sb strings.Builder
	for _, c := range p {
		if !w.didIndent {
			sb.WriteString(w.Indent)
			w.didIndent = true
		}
		sb.WriteByte(c)
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	if _, err := io.WriteString(w.W, sb.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}
