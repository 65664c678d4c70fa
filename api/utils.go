package api

import (
	"strconv"
	"sync/atomic"
	"time"

	"cadence-api/domain"
)

var lastTimestamp int64

// nextTimestampRange reserves count strictly increasing command timestamps
// and returns the first. Timestamps are nanoseconds, bumped past the last
// issued value so ordering survives bursts within the same nanosecond.
func nextTimestampRange(count int) int64 {
	if count <= 0 {
		return 0
	}
	n := int64(count)
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now+n-1) {
			return now
		}
	}
}

// finalizeCommands stamps each command with a sequential timestamp, fills
// in missing idempotency keys, and returns the key list in input order.
func finalizeCommands(cmds []domain.Command) []string {
	keys := make([]string, len(cmds))
	start := nextTimestampRange(len(cmds))
	for i := range cmds {
		ts := start + int64(i)
		cmds[i].Timestamp = ts
		if cmds[i].IdempotencyKey == "" {
			cmds[i].IdempotencyKey = strconv.FormatInt(ts, 36)
		}
		cmds[i].ID = cmds[i].IdempotencyKey
		keys[i] = cmds[i].IdempotencyKey
	}
	return keys
}
