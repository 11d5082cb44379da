package ledger

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	// idEpochMillis is 2024-01-01T00:00:00Z.
	idEpochMillis = 1704067200000
	idNodeBits    = 4
	idStepBits    = 8
	// MaxNodeID is the largest node id accepted by NewIDGenerator.
	MaxNodeID = 1<<idNodeBits - 1
)

var configureIDs sync.Once

// IDGenerator hands out monotonic entry ids. The bit layout keeps ids below
// 2^53 until 2093 so JavaScript clients can hold them as numbers.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node id.
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("node id must be between 0 and %d", MaxNodeID)
	}
	configureIDs.Do(func() {
		snowflake.Epoch = idEpochMillis
		snowflake.NodeBits = idNodeBits
		snowflake.StepBits = idStepBits
	})
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node: %w", err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns the next id.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
