package common

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	idNode     *snowflake.Node
	idNodeOnce sync.Once
)

// UUIDint64 returns a process-unique, time-sortable int64 id.
func UUIDint64() int64 {
	idNodeOnce.Do(func() {
		var err error
		idNode, err = snowflake.NewNode(1)
		if err != nil {
			panic(err)
		}
	})
	return idNode.Generate().Int64()
}
