package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cadence-api/domain"
)

type backend interface {
	FetchPeriods(ctx context.Context, userID string) ([]domain.Period, error)
	FetchTasks(ctx context.Context, userID, periodID string) ([]domain.Task, error)
	FetchBacklogTasks(ctx context.Context, userID string) ([]domain.Task, error)
	FetchProjects(ctx context.Context, userID string) ([]domain.Project, error)
	FetchReport(ctx context.Context, userID, reportID string) (domain.Report, error)
	EnqueueCommands(ctx context.Context, userID string, cmds []domain.Command) error
}

// Cache wraps a Storage instance with Redis-backed caching for read
// operations. Task caches are invalidated by bumping a per-user generation
// counter rather than enumerating keys; report snapshots are immutable and
// never need eviction.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis
// client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchPeriods(ctx context.Context, userID string) ([]domain.Period, error) {
	var periods []domain.Period
	if c.load(ctx, periodsCacheKey(userID), &periods) {
		return periods, nil
	}

	periods, err := c.base.FetchPeriods(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, periodsCacheKey(userID), periods)
	return periods, nil
}

func (c *Cache) FetchTasks(ctx context.Context, userID, periodID string) ([]domain.Task, error) {
	key := c.taskCacheKey(ctx, userID, periodID)
	var tasks []domain.Task
	if key != "" && c.load(ctx, key, &tasks) {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, userID, periodID)
	if err != nil {
		return nil, err
	}
	if key != "" {
		c.store(ctx, key, tasks)
	}
	return tasks, nil
}

func (c *Cache) FetchBacklogTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	key := c.taskCacheKey(ctx, userID, "backlog")
	var tasks []domain.Task
	if key != "" && c.load(ctx, key, &tasks) {
		return tasks, nil
	}

	tasks, err := c.base.FetchBacklogTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	if key != "" {
		c.store(ctx, key, tasks)
	}
	return tasks, nil
}

func (c *Cache) FetchProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	var projects []domain.Project
	if c.load(ctx, projectsCacheKey(userID), &projects) {
		return projects, nil
	}

	projects, err := c.base.FetchProjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, projectsCacheKey(userID), projects)
	return projects, nil
}

func (c *Cache) FetchReport(ctx context.Context, userID, reportID string) (domain.Report, error) {
	var report domain.Report
	if c.load(ctx, reportCacheKey(userID, reportID), &report) {
		return report, nil
	}

	report, err := c.base.FetchReport(ctx, userID, reportID)
	if err != nil {
		return domain.Report{}, err
	}
	c.store(ctx, reportCacheKey(userID, reportID), report)
	return report, nil
}

func (c *Cache) EnqueueCommands(ctx context.Context, userID string, cmds []domain.Command) error {
	if err := c.base.EnqueueCommands(ctx, userID, cmds); err != nil {
		return err
	}

	c.evict(ctx, userID)
	return nil
}

// load reads a cached value into out and reports whether it was usable.
// Redis errors degrade to a miss so the backing storage still serves the
// request.
func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

// taskCacheKey composes a task cache key scoped to the user's current
// generation. An empty key means caching is unavailable for this request.
func (c *Cache) taskCacheKey(ctx context.Context, userID, scope string) string {
	if c.redis == nil {
		return ""
	}
	gen, err := c.redis.Get(ctx, taskGenKey(userID)).Int64()
	if err != nil && err != redis.Nil {
		return ""
	}
	return fmt.Sprintf("tasks:%s:%d:%s", userID, gen, scope)
}

// evict drops the user's list caches. Task keys are abandoned in place by
// bumping the generation; they age out via TTL.
func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Incr(ctx, taskGenKey(userID)).Err()
	_, _ = c.redis.Del(ctx, periodsCacheKey(userID), projectsCacheKey(userID)).Result()
}

func periodsCacheKey(userID string) string {
	return "periods:" + userID
}

func projectsCacheKey(userID string) string {
	return "projects:" + userID
}

func reportCacheKey(userID, reportID string) string {
	return "report:" + userID + ":" + reportID
}

func taskGenKey(userID string) string {
	return "taskgen:" + userID
}
