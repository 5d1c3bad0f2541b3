package output

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	suberr "github.com/mrz1836/subpass/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Hint       string            `json:"hint,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// NewErrorDetail flattens err. Taxonomy errors carry their user message
// as Hint.
func NewErrorDetail(err error) ErrorDetail {
	var se *suberr.SubpassError
	if !errors.As(err, &se) {
		return ErrorDetail{
			Code:     "GENERAL_ERROR",
			Message:  err.Error(),
			ExitCode: suberr.ExitGeneral,
		}
	}

	d := ErrorDetail{
		Code:       se.Code,
		Message:    se.Message,
		Details:    se.Details,
		Suggestion: se.Suggestion,
		ExitCode:   se.ExitCode,
	}
	if hint := suberr.UserMessage(err); hint != err.Error() {
		d.Hint = hint
	}
	if se.Cause != nil {
		d.Cause = se.Cause.Error()
	}
	return d
}

// FormatError formats an error for display.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}

	if format == FormatJSON {
		return writeJSON(w, ErrorOutput{Error: NewErrorDetail(err)})
	}
	return formatErrorText(w, NewErrorDetail(err))
}

func formatErrorText(w io.Writer, d ErrorDetail) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	if d.Hint != "" {
		fmt.Fprintf(&sb, "%s\n", d.Hint)
	}

	if len(d.Details) > 0 {
		sb.WriteString("\nDetails:\n")
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}

	if d.Cause != "" {
		fmt.Fprintf(&sb, "\nCause: %s\n", d.Cause)
	}

	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
