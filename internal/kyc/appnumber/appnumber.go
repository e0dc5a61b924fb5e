// Package appnumber issues human-facing application numbers of the form
// KYC-<unix milliseconds>.
package appnumber

import (
	"strconv"
	"sync"
	"time"
)

const Prefix = "KYC-"

// Generator hands out strictly increasing numbers. Two calls within the same
// millisecond get consecutive values, so numbers issued by one process never
// collide; the stores' unique index covers the rest.
type Generator struct {
	mu   sync.Mutex
	last int64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(now time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := now.UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return Prefix + strconv.FormatInt(ms, 10)
}
