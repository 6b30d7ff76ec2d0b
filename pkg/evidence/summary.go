package evidence

import (
	"strings"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/scan"
)

var categoryOrder = []catalog.Category{
	catalog.Process, catalog.File, catalog.Network, catalog.Registry, catalog.Malware, catalog.Other,
}

// CategoryFor guesses a category from a plugin name. Used for tasks the
// catalog does not know.
func CategoryFor(taskID string) catalog.Category {
	id := strings.ToLower(taskID)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(id, s) {
				return true
			}
		}
		return false
	}
	switch {
	case has("registry", "hive", "userassist"):
		return catalog.Registry
	case has("malfind", "hollow", "suspicious", "ldrmodules", "vadregexscan", ".iat", "ssdt", "callbacks"):
		return catalog.Malware
	case has("netscan", "netstat", "sockets", "sockstat"):
		return catalog.Network
	case has("pslist", "pstree", "psscan", "psaux", "cmdline", "envars", "threads", "thrdscan", "privileges", "getsids"):
		return catalog.Process
	case has("filescan", "dumpfiles", "dlllist", "verinfo", "lsof"):
		return catalog.File
	}
	return catalog.Other
}

// Resolve returns the catalog category for taskID, falling back to
// CategoryFor. cat may be nil.
func Resolve(cat *catalog.Catalog, taskID string) catalog.Category {
	if cat != nil {
		if t, ok := cat.Get(taskID); ok {
			return t.Category
		}
	}
	return CategoryFor(taskID)
}

// FromSession normalizes every result of a session in task order. Failed
// tasks become evidence carrying their error; fallback data is flagged in
// the diagnostics.
func FromSession(s *scan.Session, cat *catalog.Catalog, limits Limits) []Evidence {
	results := s.Ordered()
	out := make([]Evidence, 0, len(results))
	for _, r := range results {
		category := Resolve(cat, r.TaskID)
		if !r.Success {
			out = append(out, Evidence{
				TaskID:      r.TaskID,
				Category:    category,
				Text:        "Error: " + r.Error,
				Diagnostics: []string{"task failed"},
			})
			continue
		}
		ev := Normalize(r.TaskID, category, r.Output, limits)
		if !r.IsAuthoritative() {
			ev.Diagnostics = append(ev.Diagnostics, "synthetic fallback data, not from the artifact")
		}
		out = append(out, ev)
	}
	return out
}

// Summary holds session statistics used in report headers and prompts.
type Summary struct {
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Fallback   int                `json:"fallback"`
	Failed     int                `json:"failed"`
	Cancelled  bool               `json:"cancelled,omitempty"`
	Domains    []catalog.Category `json:"domains"`
}

func Summarize(s *scan.Session, cat *catalog.Catalog) Summary {
	sum := Summary{Total: len(s.Results), Cancelled: s.Cancelled}
	covered := make(map[catalog.Category]bool)
	for _, r := range s.Results {
		switch {
		case !r.Success:
			sum.Failed++
			continue
		case r.IsAuthoritative():
			sum.Successful++
		default:
			sum.Fallback++
		}
		covered[Resolve(cat, r.TaskID)] = true
	}
	for _, c := range categoryOrder {
		if covered[c] {
			sum.Domains = append(sum.Domains, c)
		}
	}
	return sum
}
