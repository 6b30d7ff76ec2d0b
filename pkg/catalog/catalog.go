package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtin []byte

// Category selects how a task's output is normalized.
type Category string

const (
	Process  Category = "process"
	File     Category = "file"
	Network  Category = "network"
	Registry Category = "registry"
	Malware  Category = "malware"
	Other    Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case Process, File, Network, Registry, Malware, Other:
		return true
	}
	return false
}

type Priority string

const (
	High   Priority = "high"
	Medium Priority = "medium"
	Low    Priority = "low"
)

// Task is one analysis plugin that can be run against an artifact.
type Task struct {
	ID          string   `yaml:"id"`
	Category    Category `yaml:"category"`
	Group       string   `yaml:"group"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description"`
	Priority    Priority `yaml:"priority"`
	Args        []string `yaml:"args,omitempty"`
	// Skip marks plugins that cannot run unattended; they always fall back.
	Skip bool `yaml:"skip,omitempty"`
}

type file struct {
	Tasks []Task `yaml:"tasks"`
}

// Catalog is an ordered, read-only set of tasks.
type Catalog struct {
	tasks []Task
	index map[string]int
}

// Load returns the built-in catalog.
func Load() (*Catalog, error) {
	c := &Catalog{index: make(map[string]int)}
	if err := c.merge(builtin, "built-in catalog"); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWithOverride returns the built-in catalog with entries from path
// replacing or extending it. An empty path is the same as Load.
func LoadWithOverride(path string) (*Catalog, error) {
	c, err := Load()
	if err != nil || path == "" {
		return c, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := c.merge(data, path); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) merge(data []byte, name string) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	for _, t := range f.Tasks {
		if t.ID == "" {
			return fmt.Errorf("%s: task without id", name)
		}
		if t.Category == "" {
			t.Category = Other
		}
		if !t.Category.Valid() {
			return fmt.Errorf("%s: task %s has unknown category %q", name, t.ID, t.Category)
		}
		if t.Priority == "" {
			t.Priority = Medium
		}
		if t.DisplayName == "" {
			t.DisplayName = t.ID
		}
		if i, ok := c.index[t.ID]; ok {
			c.tasks[i] = t
			continue
		}
		c.index[t.ID] = len(c.tasks)
		c.tasks = append(c.tasks, t)
	}
	return nil
}

// Get retrieves a task by id
func (c *Catalog) Get(id string) (Task, bool) {
	i, ok := c.index[id]
	if !ok {
		return Task{}, false
	}
	return c.tasks[i], true
}

// Tasks returns all tasks in catalog order.
func (c *Catalog) Tasks() []Task {
	out := make([]Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Filter returns tasks whose id, name, description or group contains text
// (case-insensitive). An empty category matches all categories.
func (c *Catalog) Filter(text string, category Category) []Task {
	text = strings.ToLower(text)
	var out []Task
	for _, t := range c.tasks {
		if category != "" && t.Category != category {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(t.ID), text) &&
			!strings.Contains(strings.ToLower(t.DisplayName), text) &&
			!strings.Contains(strings.ToLower(t.Description), text) &&
			!strings.Contains(strings.ToLower(t.Group), text) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Groups returns the distinct display groups, sorted.
func (c *Catalog) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range c.tasks {
		if !seen[t.Group] {
			seen[t.Group] = true
			out = append(out, t.Group)
		}
	}
	sort.Strings(out)
	return out
}

// QuickScan is the default task set used when none is requested.
func QuickScan() []string {
	return []string{"windows.pslist", "windows.malfind", "windows.filescan", "windows.netscan"}
}
