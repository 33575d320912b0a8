package replay

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/taskforce/internal/session"
)

// printContent prints verbose content with timeline indentation.
func (r *Replayer) printContent(content string) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		fmt.Fprintf(r.output, "      │          │   %s\n", line)
	}
}

// printDelegateOutput prints a delegated task's result, capped by verbosity.
func (r *Replayer) printDelegateOutput(content string) {
	lines := strings.Split(content, "\n")
	maxLines := 10
	if r.verbosity >= 1 {
		maxLines = 50
	}

	for i, line := range lines {
		if i >= maxLines {
			fmt.Fprintf(r.output, "      │          │     %s\n",
				delegateDimStyle.Render(fmt.Sprintf("... (%d more lines)", len(lines)-maxLines)))
			break
		}
		fmt.Fprintf(r.output, "      │          │     %s\n", delegateDimStyle.Render(line))
	}
}

// printArgs prints action fields in key order.
func (r *Replayer) printArgs(args map[string]interface{}) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(r.output, "      │          │   %s %v\n",
			labelStyle.Render(k+":"), args[k])
	}
}

// printError prints an error.
func (r *Replayer) printError(err string) {
	if err == "" {
		return
	}
	fmt.Fprintf(r.output, "      │          │   %s\n", errorStyle.Render(err))
}

// printLLMMeta prints LLM metadata (model, tokens, latency).
func (r *Replayer) printLLMMeta(meta *session.EventMeta) {
	if meta == nil || meta.Model == "" {
		return
	}

	fmt.Fprintf(r.output, "      │          │   %s %s",
		labelStyle.Render("model:"), valueStyle.Render(meta.Model))
	if meta.TokensIn > 0 || meta.TokensOut > 0 {
		fmt.Fprintf(r.output, "  %s %d→%d",
			labelStyle.Render("tokens:"), meta.TokensIn, meta.TokensOut)
	}
	if meta.LatencyMs > 0 {
		fmt.Fprintf(r.output, "  %s %dms",
			labelStyle.Render("latency:"), meta.LatencyMs)
	}
	fmt.Fprintf(r.output, "\n")

	if meta.Thinking != "" {
		fmt.Fprintf(r.output, "      │          │\n")
		fmt.Fprintf(r.output, "      │          │   %s\n", blockHeaderStyle.Render("── THINKING ──"))
		r.printContent(meta.Thinking)
	}
}

// statusStyle returns appropriate style for status.
func (r *Replayer) statusStyle(status string) lipgloss.Style {
	switch status {
	case session.StatusComplete:
		return successStyle
	case session.StatusFailed, session.StatusTimeout, session.StatusCancelled:
		return errorStyle
	default:
		return warnStyle
	}
}

// hintFields names the field that best identifies each action.
var hintFields = map[string]string{
	"CREATE_FILE":    "PATH",
	"READ_FILE":      "PATH",
	"LIST_FILES":     "PATH",
	"EXECUTE":        "COMMAND",
	"VERIFY":         "WHAT",
	"BROWSER":        "URL",
	"SEARCH_WEB":     "QUERY",
	"THINK":          "THOUGHT",
	"DELEGATE":       "AGENT_TYPE",
	"GENERATE_CODE":  "REQUIREMENTS",
	"GENERATE_TESTS": "TEST_TYPE",
	"REVIEW_CODE":    "FOCUS_AREAS",
	"DEBUG_ERROR":    "ERROR_MESSAGE",
}

// getArgsHint returns a concise hint about the key field of an action.
func (r *Replayer) getArgsHint(tool string, args map[string]interface{}) string {
	field, ok := hintFields[tool]
	if !ok || args == nil {
		return ""
	}
	v, _ := args[field].(string)
	if tool == "BROWSER" && v == "" {
		v, _ = args["TASK"].(string)
	}
	if v == "" {
		return ""
	}
	return dimStyle.Render(fmt.Sprintf(" [%s]", truncateHint(v, 60)))
}

// truncateHint truncates a string to maxLen, adding ... if needed.
func truncateHint(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return cutUTF8(s, maxLen-3) + "..."
}

// truncateContent truncates a string for display.
func truncateContent(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return cutUTF8(s, maxLen) + "..."
}

// formatMap formats a string map for display in key order.
func formatMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, m[k])
	}
	return strings.Join(parts, ", ")
}

// cutUTF8 returns at most n bytes of s without splitting a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
