package evidence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/scan"
)

// ProcessNode is one process seen in process listing output.
type ProcessNode struct {
	PID  int64  `json:"pid"`
	PPID int64  `json:"ppid"`
	Name string `json:"name"`
}

func (n ProcessNode) String() string {
	return fmt.Sprintf("%s(%d)", n.Name, n.PID)
}

// ProcessGraph links processes to their parents. The first record seen for
// a pid wins.
type ProcessGraph struct {
	nodes    map[int64]ProcessNode
	children map[int64][]int64
}

func NewProcessGraph() *ProcessGraph {
	return &ProcessGraph{
		nodes:    make(map[int64]ProcessNode),
		children: make(map[int64][]int64),
	}
}

// Add ingests process records. Records without a usable pid are ignored.
func (g *ProcessGraph) Add(recs []Record) {
	for _, r := range recs {
		v, _ := r.Get("pid")
		pid, ok := toPID(v)
		if !ok {
			continue
		}
		if _, exists := g.nodes[pid]; exists {
			continue
		}
		n := ProcessNode{PID: pid, PPID: -1}
		if name, ok := r.Get("name"); ok {
			n.Name = fmt.Sprint(name)
		}
		if v, ok := r.Get("ppid"); ok {
			if ppid, ok := toPID(v); ok {
				n.PPID = ppid
			}
		}
		g.nodes[pid] = n
		if n.PPID >= 0 && n.PPID != pid {
			g.children[n.PPID] = append(g.children[n.PPID], pid)
		}
	}
}

func (g *ProcessGraph) Len() int { return len(g.nodes) }

func (g *ProcessGraph) Node(pid int64) (ProcessNode, bool) {
	n, ok := g.nodes[pid]
	return n, ok
}

// Roots returns the pids whose parent is unknown, sorted.
func (g *ProcessGraph) Roots() []int64 {
	var roots []int64
	for pid, n := range g.nodes {
		if _, ok := g.nodes[n.PPID]; !ok || n.PPID == pid {
			roots = append(roots, pid)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// Path returns the chain of processes from a root down to pid, or nil when
// pid is unknown or sits on a parent cycle.
func (g *ProcessGraph) Path(pid int64) []ProcessNode {
	if _, ok := g.nodes[pid]; !ok {
		return nil
	}
	var queue [][]int64
	visited := make(map[int64]bool)
	for _, r := range g.Roots() {
		queue = append(queue, []int64{r})
		visited[r] = true
	}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		node := path[len(path)-1]
		if node == pid {
			out := make([]ProcessNode, len(path))
			for i, id := range path {
				out[i] = g.nodes[id]
			}
			return out
		}

		kids := append([]int64(nil), g.children[node]...)
		sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
		for _, k := range kids {
			if visited[k] {
				continue
			}
			visited[k] = true
			next := make([]int64, len(path), len(path)+1)
			copy(next, path)
			queue = append(queue, append(next, k))
		}
	}
	return nil
}

// Suspect is a process named by a malware-category task, with its ancestry
// when the process listing has it.
type Suspect struct {
	PID     int64         `json:"pid"`
	Name    string        `json:"name"`
	TaskIDs []string      `json:"taskIds"`
	Path    []ProcessNode `json:"path,omitempty"`
	// Listed is set when the process listing has the pid. A listed suspect
	// without a path sits on a parent cycle.
	Listed bool `json:"listed"`
}

// Lineage links processes flagged by malware-category tasks to their parent
// chain from process-category tasks. Only authoritative results are used.
// Suspects are sorted by pid.
func Lineage(s *scan.Session, cat *catalog.Catalog) []Suspect {
	g := NewProcessGraph()
	unbounded := Limits{Items: 1 << 30}

	byPID := make(map[int64]*Suspect)
	for _, r := range s.Ordered() {
		if !r.IsAuthoritative() {
			continue
		}
		switch c := Resolve(cat, r.TaskID); c {
		case catalog.Process:
			g.Add(Normalize(r.TaskID, c, r.Output, unbounded).Records)
		case catalog.Malware:
			for _, rec := range Normalize(r.TaskID, c, r.Output, unbounded).Records {
				v, _ := rec.Get("pid")
				pid, ok := toPID(v)
				if !ok {
					continue
				}
				sus, ok := byPID[pid]
				if !ok {
					sus = &Suspect{PID: pid}
					if name, ok := rec.Get("process"); ok {
						sus.Name = fmt.Sprint(name)
					}
					byPID[pid] = sus
				}
				if !containsString(sus.TaskIDs, r.TaskID) {
					sus.TaskIDs = append(sus.TaskIDs, r.TaskID)
				}
			}
		}
	}

	out := make([]Suspect, 0, len(byPID))
	for _, sus := range byPID {
		sus.Path = g.Path(sus.PID)
		if n, ok := g.Node(sus.PID); ok {
			sus.Listed = true
			if n.Name != "" {
				sus.Name = n.Name
			}
		}
		out = append(out, *sus)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// LineageText renders suspects as prompt lines. It returns "" for none.
func LineageText(sus []Suspect) string {
	if len(sus) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range sus {
		b.WriteString("- ")
		switch {
		case len(s.Path) == 0 && s.Listed:
			fmt.Fprintf(&b, "%s(%d) (parent chain loops)", s.Name, s.PID)
		case len(s.Path) == 0:
			fmt.Fprintf(&b, "%s(%d) (not in process listing)", s.Name, s.PID)
		default:
			parts := make([]string, len(s.Path))
			for i, n := range s.Path {
				parts[i] = n.String()
			}
			b.WriteString(strings.Join(parts, " -> "))
		}
		fmt.Fprintf(&b, " [flagged by %s]\n", strings.Join(s.TaskIDs, ", "))
	}
	return b.String()
}

func toPID(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, x >= 0
	case float64:
		return int64(x), x >= 0 && x == float64(int64(x))
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil && n >= 0
	}
	return 0, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
