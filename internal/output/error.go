package output

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

// ErrorOutput represents a structured error for JSON output.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// FormatError formats an error for display.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	if format == FormatJSON {
		return WriteJSON(w, ErrorOutput{Error: detailOf(err)})
	}
	return formatErrorText(w, err)
}

func detailOf(err error) ErrorDetail {
	var be *bridgeerr.BridgeError
	if errors.As(err, &be) {
		return ErrorDetail{
			Code:       be.Code,
			Message:    be.Message,
			Details:    be.Details,
			Suggestion: be.Suggestion,
			ExitCode:   be.ExitCode,
		}
	}
	return ErrorDetail{
		Code:     bridgeerr.ErrGeneral.Code,
		Message:  err.Error(),
		ExitCode: bridgeerr.ExitGeneral,
	}
}

func formatErrorText(w io.Writer, err error) error {
	var sb strings.Builder

	var be *bridgeerr.BridgeError
	if !errors.As(err, &be) {
		sb.WriteString(fmt.Sprintf("Error: %s\n", err.Error()))
		_, werr := io.WriteString(w, sb.String())
		return werr
	}

	sb.WriteString(fmt.Sprintf("Error: %s\n", be.Message))
	if len(be.Details) > 0 {
		keys := make([]string, 0, len(be.Details))
		for k := range be.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, be.Details[k]))
		}
	}
	if be.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\nSuggestion: %s\n", be.Suggestion))
	}

	_, werr := io.WriteString(w, sb.String())
	return werr
}

// FormatSuccess formats a success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		return WriteJSON(w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
