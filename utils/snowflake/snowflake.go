// Package snowflake issues time-ordered int64 ids. The API nodes use it for
// attachment object keys so a bucket listing sorts by upload time.
package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch is 2024-01-01T00:00:00Z in milliseconds.
	Epoch int64 = 1704067200000

	nodeBits     uint8 = 10
	sequenceBits uint8 = 12

	MaxNode int64 = -1 ^ (-1 << nodeBits)

	sequenceMask int64 = -1 ^ (-1 << sequenceBits)
	nodeShift          = sequenceBits
	timeShift          = sequenceBits + nodeBits
)

var (
	ErrInvalidNode         = errors.New("snowflake: node id out of range")
	ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")
)

// Generator is safe for concurrent use.
type Generator struct {
	mu sync.Mutex

	node     int64
	sequence int64
	lastMs   int64

	now func() time.Time
}

// NewGenerator returns a generator for node, which must be in [0, MaxNode].
func NewGenerator(node int64) (*Generator, error) {
	if node < 0 || node > MaxNode {
		return nil, ErrInvalidNode
	}
	return &Generator{node: node, now: time.Now}, nil
}

// NextID returns the next id.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		return 0, ErrClockMovedBackwards
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			for ms <= g.lastMs {
				ms = g.now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return (ms-Epoch)<<timeShift | g.node<<nodeShift | g.sequence, nil
}

// NextString is NextID in base 36, which keeps object keys short.
func (g *Generator) NextString() (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

// Parse splits an id into its creation time, node and sequence.
func Parse(id int64) (time.Time, int64, int64) {
	ms := id>>timeShift + Epoch
	return time.UnixMilli(ms), (id >> nodeShift) & MaxNode, id & sequenceMask
}
