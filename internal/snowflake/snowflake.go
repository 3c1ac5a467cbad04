package snowflake

import (
	"fmt"
	"sync"
	"time"
)

type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

const (
	timestampLength int64 = 42
	timestampPos          = 64 - timestampLength // 22
	workerLength    int64 = 10
	workerPos             = timestampPos - workerLength           // 12
	incrementLength       = 64 - (timestampLength + workerLength) // 12

	MaxWorkerID       int64 = 1<<workerLength - 1
	maxIncrementValue int64 = 1<<incrementLength - 1
)

// Generator hands out time-ordered ids. Ids from one generator are strictly
// increasing, which makes them usable as a tie breaker next to timestamps.
type Generator struct {
	mutex         sync.Mutex
	workerID      int64
	lastTimestamp int64
	lastIncrement int64
	now           func() time.Time
}

func New(workerID int64) (*Generator, error) {
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("worker ID value must be between 0 and %d", MaxWorkerID)
	}
	return &Generator{workerID: workerID, now: time.Now}, nil
}

func (g *Generator) Generate() (int64, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	timestamp := g.now().UnixMilli()
	if timestamp < g.lastTimestamp {
		// clock went backwards, keep issuing from the last known millisecond
		timestamp = g.lastTimestamp
	}

	if timestamp == g.lastTimestamp {
		g.lastIncrement++
		if g.lastIncrement > maxIncrementValue {
			return 0, fmt.Errorf("increment overflow after increment reached %d", g.lastIncrement)
		}
	} else {
		g.lastIncrement = 0
		g.lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | g.workerID<<workerPos | g.lastIncrement, nil
}

func Extract(id int64) Snowflake {
	return Snowflake{
		Timestamp: id >> timestampPos,
		WorkerID:  (id >> workerPos) & MaxWorkerID,
		Increment: id & maxIncrementValue,
	}
}

func ExtractTime(id int64) time.Time {
	return time.UnixMilli(id >> timestampPos)
}
