package evidence

import (
	"fmt"
	"strings"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
)

// Field is one canonical name/value pair of a record.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Record is a normalized finding. Fields keep the order of the alias table
// that produced them.
type Record struct {
	TaskID   string           `json:"taskId"`
	Category catalog.Category `json:"category"`
	Fields   []Field          `json:"fields"`
}

func (r Record) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func (r Record) String() string {
	parts := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Name, f.Value))
	}
	return strings.Join(parts, " ")
}

// Evidence is the normalized view of one task's output.
type Evidence struct {
	TaskID      string           `json:"taskId"`
	Category    catalog.Category `json:"category"`
	Records     []Record         `json:"records,omitempty"`
	Text        string           `json:"text"`
	Diagnostics []string         `json:"diagnostics,omitempty"`
}

// Limits bound how much of a payload survives normalization.
type Limits struct {
	Items       int
	PerCategory map[catalog.Category]int
	Chars       int
	JSONChars   int
}

func DefaultLimits() Limits {
	return Limits{
		Items: 20,
		PerCategory: map[catalog.Category]int{
			catalog.File:    15,
			catalog.Network: 10,
		},
		Chars:     1000,
		JSONChars: 800,
	}
}

func (l Limits) items(c catalog.Category) int {
	if n, ok := l.PerCategory[c]; ok && n > 0 {
		return n
	}
	if l.Items > 0 {
		return l.Items
	}
	return 20
}

func (l Limits) chars() int {
	if l.Chars > 0 {
		return l.Chars
	}
	return 1000
}

func (l Limits) jsonChars() int {
	if l.JSONChars > 0 {
		return l.JSONChars
	}
	return 800
}
