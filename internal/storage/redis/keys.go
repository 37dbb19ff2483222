package redis

import (
	"fmt"

	"github.com/groupflight/flightgroup/internal/storage"
)

// Key prefix for all backend data
const keyPrefix = "flightgroup"

// itemKey returns the Redis key for an item in a table
func itemKey(table storage.Table, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, table, key)
}
