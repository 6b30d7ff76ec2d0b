package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ShivamLahoty/MemHawk/pkg/evidence"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// taskOutputChars caps the raw JSON handed to the per-task prompt.
const taskOutputChars = 8000

type fullReportData struct {
	Filename string
	Size     string
	Summary  evidence.Summary
	Evidence string
}

type quickSummaryData struct {
	Evidence string
}

type taskFormatData struct {
	DisplayName string
	Output      string
	Guidance    string
	Demo        bool
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to build prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// EvidenceText renders normalized evidence as the data block embedded in
// prompts. Each task's text is capped at budget characters.
func EvidenceText(evs []evidence.Evidence, budget int) string {
	var sb strings.Builder
	for _, ev := range evs {
		if strings.HasPrefix(ev.Text, "Error: ") {
			fmt.Fprintf(&sb, "\n=== %s ===\n%s\n", strings.ToUpper(ev.TaskID), ev.Text)
			continue
		}
		fmt.Fprintf(&sb, "\n=== %s RESULTS ===\n", strings.ToUpper(ev.TaskID))
		sb.WriteString(capText(ev.Text, budget))
		sb.WriteByte('\n')
		for _, d := range ev.Diagnostics {
			fmt.Fprintf(&sb, "Note: %s\n", d)
		}
	}
	if sb.Len() == 0 {
		return "No readable scan data found."
	}
	return sb.String()
}

// FormatGuidance returns the per-plugin hint for the formatting prompt.
func FormatGuidance(taskID string) string {
	id := strings.ToLower(taskID)
	switch {
	case strings.Contains(id, "pslist"), strings.Contains(id, "pstree"), strings.Contains(id, "psscan"):
		return "Focus on: Process names, PIDs, parent relationships, start times"
	case strings.Contains(id, "netscan"), strings.Contains(id, "netstat"):
		return "Focus on: Local/remote addresses, ports, connection states, associated processes"
	case strings.Contains(id, "filescan"):
		return "Focus on: File paths, handles, access times, file sizes"
	case strings.Contains(id, "cmdline"):
		return "Focus on: Process names, command line arguments, execution paths"
	case strings.Contains(id, "dlllist"):
		return "Focus on: DLL names, base addresses, load paths, process associations"
	case strings.Contains(id, "handles"):
		return "Focus on: Handle types, values, access permissions, associated objects"
	case strings.Contains(id, "malfind"):
		return "Focus on: Process names, PIDs, memory protections, tags and suspicious regions"
	case strings.Contains(id, "registry"), strings.Contains(id, "hivelist"):
		return "Focus on: Hive paths, key names, offsets"
	}
	return "Focus on: Key data fields, important values, technical details"
}

// DisplayName derives a readable name from a plugin id.
func DisplayName(taskID string) string {
	name := taskID
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return taskID
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func outputJSON(v any) string {
	if s, ok := v.(string); ok {
		return capText(s, taskOutputChars)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return capText(string(data), taskOutputChars)
}

func capText(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
