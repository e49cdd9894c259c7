package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeMu sync.Mutex
	node   *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// SetSnowflakeNode replaces the node used by NewSnowflakeID.
func SetSnowflakeNode(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	nodeMu.Lock()
	node = n
	nodeMu.Unlock()
	return nil
}

// NewSnowflakeID generates a snowflake ID string. The node is created once,
// from SNOWFLAKE_NODE when SetSnowflakeNode was not called, so ids generated
// within the same millisecond keep distinct sequence numbers. If node setup
// fails it falls back to a KSUID string to ensure a unique ID is returned.
func NewSnowflakeID() string {
	nodeMu.Lock()
	if node == nil {
		n, err := snowflake.NewNode(nodeFromEnv())
		if err != nil {
			nodeMu.Unlock()
			return NewKSUID()
		}
		node = n
	}
	n := node
	nodeMu.Unlock()
	return n.Generate().String()
}

func nodeFromEnv() int64 {
	nodeEnv := os.Getenv("SNOWFLAKE_NODE")
	if nodeEnv == "" {
		return 1
	}
	nodeID, err := strconv.ParseInt(nodeEnv, 10, 64)
	if err != nil {
		return 1
	}
	return nodeID
}
