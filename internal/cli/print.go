package cli

import (
	"fmt"
	"io"
)

// out writes formatted text, ignoring write errors on terminal output.
func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// outln writes a line, ignoring write errors on terminal output.
func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}
