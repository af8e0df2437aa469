package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids for account rows.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator builds a generator for the given node id (0..1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &IDGenerator{node: node}, nil
}

// Next returns the next snowflake id.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

var (
	defaultGenOnce sync.Once
	defaultGen     *IDGenerator
)

// NodeFromEnv reads SNOWFLAKE_NODE, defaulting to node 1 when unset or invalid.
func NodeFromEnv() int64 {
	nodeID, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64)
	if err != nil || nodeID < 0 || nodeID > 1023 {
		return 1
	}
	return nodeID
}

// NewSnowflakeID generates a snowflake id using the node from SNOWFLAKE_NODE.
func NewSnowflakeID() int64 {
	defaultGenOnce.Do(func() {
		g, err := NewIDGenerator(NodeFromEnv())
		if err != nil {
			g, _ = NewIDGenerator(1)
		}
		defaultGen = g
	})
	return defaultGen.Next()
}
