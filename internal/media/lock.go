package media

import (
	"hash/fnv"
	"sync"
	"time"
)

const lockStripes = 64

// stripedLock 按目标身份分段的互斥锁，同一目标的清理和写入串行执行
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) forKey(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()%lockStripes]
}

// versionClock 毫秒时间戳，保证严格递增
type versionClock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (c *versionClock) next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.now().UnixMilli()
	if v <= c.last {
		v = c.last + 1
	}
	c.last = v
	return v
}
