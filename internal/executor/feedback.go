package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinayprograms/taskforce/internal/effector"
	"github.com/vinayprograms/taskforce/internal/protocol"
)

const nudge = "Please continue with the next step. Remember to use ACTION: format."

// readPreview is how much of a file READ_FILE feedback shows.
const readPreview = 500

// rejection is the turn appended when the machine refuses an action.
func rejection(reason, guidance string) string {
	return fmt.Sprintf("❌ Action rejected: %s\n\n%s", reason, guidance)
}

// feedback summarizes an effector result for the model.
func feedback(a protocol.Action, res effector.Result) string {
	var b strings.Builder
	if !res.Success {
		fmt.Fprintf(&b, "❌ %s failed.\n", a.Kind)
		msg := res.Error
		if msg == "" {
			msg = "Unknown error"
		}
		fmt.Fprintf(&b, "Error: %s\n", msg)
		if a.Kind == protocol.KindExecute {
			if res.Output != "" {
				fmt.Fprintf(&b, "Output:\n%s\n", res.Output)
			}
			fmt.Fprintf(&b, "Exit code: %d\n", res.StatusCode)
		}
		b.WriteString(`
IMPORTANT: Learn from this error!
- Why did it fail?
- What should you do differently?
- How can you fix this?

Try again with a corrected approach. Don't repeat the same mistake!`)
		return b.String()
	}

	fmt.Fprintf(&b, "✅ %s succeeded.\n", a.Kind)
	switch a.Kind {
	case protocol.KindExecute:
		fmt.Fprintf(&b, "Command: %s\n", a.Field("COMMAND"))
		if res.Output != "" {
			fmt.Fprintf(&b, "Output:\n%s\n", res.Output)
		}
		fmt.Fprintf(&b, "Exit code: %d\n", res.StatusCode)
	case protocol.KindReadFile:
		if len(res.Output) > readPreview {
			fmt.Fprintf(&b, "File content (first %d chars):\n%s...\n", readPreview, cutUTF8(res.Output, readPreview))
		} else {
			fmt.Fprintf(&b, "File content:\n%s\n", res.Output)
		}
	case protocol.KindCreateFile:
		fmt.Fprintf(&b, "File created at: %s\n", res.Output)
	case protocol.KindListFiles:
		var entries []effector.Entry
		if err := json.Unmarshal([]byte(res.Output), &entries); err == nil {
			fmt.Fprintf(&b, "Found %d files/directories:\n", len(entries))
		}
		fmt.Fprintf(&b, "%s\n", res.Output)
	default:
		if res.Output != "" {
			fmt.Fprintf(&b, "%s\n", res.Output)
		}
	}
	b.WriteString("\nWhat's the next step?")
	return b.String()
}
