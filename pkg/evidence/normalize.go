package evidence

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
)

// Normalize turns a raw task payload into canonical records plus a text
// rendering suitable for prompts. It never fails: unusable input produces
// diagnostics instead. Output depends only on the arguments.
func Normalize(taskID string, category catalog.Category, payload any, limits Limits) Evidence {
	ev := Evidence{TaskID: taskID, Category: category}

	switch p := payload.(type) {
	case nil:
		ev.Text = "No output"
		ev.Diagnostics = append(ev.Diagnostics, "empty output")
		return ev
	case string:
		ev.Text = truncate(p, limits.chars())
		return ev
	}

	tbl, known := tables[category]
	if !known {
		ev.Text = serialize(payload, limits.jsonChars())
		return ev
	}

	items, ok := asItems(payload)
	if !ok {
		ev.Text = serialize(payload, limits.jsonChars())
		ev.Diagnostics = append(ev.Diagnostics, notRecognized(category))
		return ev
	}
	if n := limits.items(category); len(items) > n {
		items = items[:n]
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		rec, ok := match(taskID, category, tbl, item)
		if !ok {
			continue
		}
		ev.Records = append(ev.Records, rec)
		lines = append(lines, tbl.line(rec))
	}

	if len(ev.Records) == 0 {
		ev.Diagnostics = append(ev.Diagnostics, notRecognized(category))
		if len(items) > 0 {
			if m, ok := items[0].(map[string]any); ok {
				ev.Diagnostics = append(ev.Diagnostics, "first item keys: "+strings.Join(sortedKeys(m), ", "))
			}
		}
		ev.Text = strings.ToUpper(string(category[:1])) + string(category[1:]) + " data format not recognized"
		return ev
	}
	ev.Text = strings.Join(lines, "\n")
	return ev
}

func notRecognized(c catalog.Category) string {
	return fmt.Sprintf("format not recognized for category %s", c)
}

// asItems returns the list of objects in payload, flattening process trees
// depth-first.
func asItems(payload any) ([]any, bool) {
	switch p := payload.(type) {
	case []any:
		return flatten(p, nil), true
	case []map[string]any:
		items := make([]any, len(p))
		for i, m := range p {
			items[i] = m
		}
		return flatten(items, nil), true
	case map[string]any:
		if procs, ok := p["processes"].([]any); ok {
			return flatten(procs, nil), true
		}
		return flatten([]any{p}, nil), true
	}
	return nil, false
}

func flatten(items []any, out []any) []any {
	for _, item := range items {
		out = append(out, item)
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"children", "__children"} {
			if kids, ok := m[key].([]any); ok {
				out = flatten(kids, out)
			}
		}
	}
	return out
}

func match(taskID string, category catalog.Category, tbl table, item any) (Record, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return Record{}, false
	}
	rec := Record{TaskID: taskID, Category: category}
	matched := make(map[string]bool, len(tbl.concepts))
	for _, c := range tbl.concepts {
		for _, alias := range c.aliases {
			v, ok := scalar(m[alias])
			if !ok {
				continue
			}
			rec.Fields = append(rec.Fields, Field{Name: c.name, Value: v})
			matched[c.name] = true
			break
		}
	}
	for _, group := range tbl.required {
		found := false
		for _, name := range group {
			if matched[name] {
				found = true
				break
			}
		}
		if !found {
			return Record{}, false
		}
	}
	return rec, true
}

// scalar reports whether v is a usable non-empty value and converts JSON
// numbers to int64 when they are integral.
func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return x.String(), true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x), true
		}
		return x, true
	case int:
		return int64(x), true
	case int64, bool:
		return x, true
	}
	return nil, false
}

func processLine(r Record) string {
	name, _ := r.Get("name")
	pid, _ := r.Get("pid")
	line := fmt.Sprintf("- Process: %v (PID: %v)", name, pid)
	if ppid, ok := r.Get("ppid"); ok {
		line += fmt.Sprintf(" Parent: %v", ppid)
	}
	return line
}

func fileLine(r Record) string {
	name, _ := r.Get("name")
	line := fmt.Sprintf("- File: %v", name)
	if size, ok := r.Get("size"); ok {
		line += fmt.Sprintf(" (%v bytes)", size)
	}
	return line
}

func networkLine(r Record) string {
	get := func(name, def string) any {
		if v, ok := r.Get(name); ok {
			return v
		}
		return def
	}
	line := fmt.Sprintf("- Connection: %v:%v -> %v:%v",
		get("local_addr", "N/A"), get("local_port", "?"),
		get("foreign_addr", "N/A"), get("foreign_port", "?"))
	if state, ok := r.Get("state"); ok {
		line += fmt.Sprintf(" (%v)", state)
	}
	if owner, ok := r.Get("owner"); ok {
		line += fmt.Sprintf(" [%v]", owner)
	}
	return line
}

func genericLine(label string) func(Record) string {
	return func(r Record) string {
		return "- " + label + ": " + r.String()
	}
}

func serialize(v any, n int) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return truncate(fmt.Sprintf("%v", v), n)
	}
	return truncate(string(data), n)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
