package util

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator hands out time-ordered int64 ids unique per node.
type IDGenerator struct {
	node *snowflake.Node
}

func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

func (g *IDGenerator) NextID() int64 {
	return g.node.Generate().Int64()
}
