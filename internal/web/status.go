package web

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/tabrec/internal/coordinator"
	"github.com/hpungsan/tabrec/internal/ops"
)

// statusMarkdown renders the recorder state and the session list as a
// Markdown report.
func statusMarkdown(state coordinator.State, sessions *ops.ListSessionsOutput) string {
	var b strings.Builder

	b.WriteString("# tabrec\n\n## Recorder\n\n")
	if state.IsRecording {
		b.WriteString("- **State:** recording\n")
	} else {
		b.WriteString("- **State:** idle\n")
	}
	if state.CurrentSessionID != "" {
		fmt.Fprintf(&b, "- **Session:** `%s`\n", state.CurrentSessionID)
	}
	if state.CurrentTabID != "" {
		fmt.Fprintf(&b, "- **Current tab:** `%s`\n", state.CurrentTabID)
	}
	fmt.Fprintf(&b, "- **Capturing tabs:** %d\n", len(state.ActiveTabs))

	fmt.Fprintf(&b, "\n## Sessions (%d)\n\n", sessions.Pagination.Total)
	if len(sessions.Items) == 0 {
		b.WriteString("No recordings stored.\n")
		return b.String()
	}

	b.WriteString("| Session | Started | Recordings | Events | First page |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, s := range sessions.Items {
		page := ""
		if len(s.Recordings) > 0 {
			page = s.Recordings[0].Title
			if page == "" {
				page = s.Recordings[0].URL
			}
		}
		fmt.Fprintf(&b, "| `%s` | %s | %d | %s | %s |\n",
			s.SessionID,
			formatMillis(s.FirstTimestamp),
			len(s.Recordings),
			formatCount(s.TotalEvents),
			escapeCell(page),
		)
	}
	if sessions.Pagination.HasMore {
		fmt.Fprintf(&b, "\n%d more not shown.\n", sessions.Pagination.Total-len(sessions.Items)-sessions.Pagination.Offset)
	}
	return b.String()
}

// escapeCell keeps free text from breaking a Markdown table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.TrimSpace(s)
}

// formatMillis formats a unix millisecond timestamp as "2006-01-02 15:04:05" UTC.
func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}

// formatCount formats an integer with comma thousands separators.
func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
