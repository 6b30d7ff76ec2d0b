package signing

import (
	"fmt"
	"sync"
	"time"
)

const ReportIDPrefix = "MH"

// IDGenerator issues report ids of the form MH-<unix ms>-<counter>. Ids are
// unique within one generator; the millisecond part never goes backwards.
type IDGenerator struct {
	mu      sync.Mutex
	lastMs  int64
	counter int
	now     func() time.Time
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	g.lastMs = ms
	g.counter++
	return fmt.Sprintf("%s-%d-%03d", ReportIDPrefix, ms, g.counter)
}
