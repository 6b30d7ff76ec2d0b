package render

import (
	"fmt"
	"strings"
	"time"
)

const DefaultTitle = "MemHawk Forensic Analysis Report"

// ReportDraft is a narrative split into titled sections.
type ReportDraft struct {
	Title           string    `json:"title"`
	Sections        []Section `json:"sections"`
	SourceSessionID string    `json:"sourceSessionId,omitempty"`
}

// Section holds the markdown under one level-1 or level-2 heading. The
// preamble before the first heading has an empty Title.
type Section struct {
	Title string `json:"title"`
	Level int    `json:"level"`
	Body  string `json:"body"`
}

// ArtifactMeta describes the analyzed memory image.
type ArtifactMeta struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Created  time.Time `json:"created,omitempty"`
}

// Header carries the per-document values printed in the metadata grid.
type Header struct {
	ReportID    string
	Generated   time.Time
	ToolVersion string
	Status      string
}

// Draft splits markdown on level-1 and level-2 headings. Headings inside
// fenced code blocks are ignored. An empty title is taken from a leading
// level-1 heading, or DefaultTitle.
func Draft(title, markdown, sessionID string) ReportDraft {
	d := ReportDraft{Title: title, SourceSessionID: sessionID}

	var cur *Section
	var body []string
	flush := func() {
		text := strings.Trim(strings.Join(body, "\n"), "\n")
		if cur != nil {
			cur.Body = text
			d.Sections = append(d.Sections, *cur)
		} else if strings.TrimSpace(text) != "" {
			d.Sections = append(d.Sections, Section{Body: text})
		}
		body = body[:0]
	}

	fence := ""
	for _, line := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if f := fenceMarker(trimmed); f != "" {
			switch {
			case fence == "":
				fence = f
			case strings.HasPrefix(trimmed, fence):
				fence = ""
			}
		}
		if fence == "" {
			if level, text := sectionHeading(line); level > 0 {
				flush()
				cur = &Section{Title: text, Level: level}
				continue
			}
		}
		body = append(body, line)
	}
	flush()

	if d.Title == "" {
		d.Title = DefaultTitle
		if len(d.Sections) > 0 && d.Sections[0].Level == 1 {
			d.Title = d.Sections[0].Title
			if strings.TrimSpace(d.Sections[0].Body) == "" {
				d.Sections = d.Sections[1:]
			}
		}
	}
	return d
}

// Markdown reassembles the draft.
func (d ReportDraft) Markdown() string {
	var sb strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if s.Title != "" {
			fmt.Fprintf(&sb, "%s %s\n\n", strings.Repeat("#", s.Level), s.Title)
		}
		sb.WriteString(s.Body)
	}
	return sb.String()
}

func fenceMarker(line string) string {
	for _, f := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, f) {
			return f
		}
	}
	return ""
}

func sectionHeading(line string) (int, string) {
	for level, prefix := range []string{"# ", "## "} {
		if strings.HasPrefix(line, prefix) {
			text := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(line[len(prefix):]), "#"))
			return level + 1, text
		}
	}
	return 0, ""
}
