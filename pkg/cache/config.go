package cache

import "time"

type RedisOption func(*RedisConfig)

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	Prefix       string
}

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		Prefix:       "corrpull",
	}
}

func WithRedisHost(host string) RedisOption { return func(c *RedisConfig) { c.Host = host } }

func WithRedisPort(port int) RedisOption { return func(c *RedisConfig) { c.Port = port } }

func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) { c.Password = password }
}

func WithRedisDB(db int) RedisOption { return func(c *RedisConfig) { c.DB = db } }

// WithRedisPrefix namespaces every key, so several deployments can share one Redis.
func WithRedisPrefix(prefix string) RedisOption { return func(c *RedisConfig) { c.Prefix = prefix } }

func WithRedisPool(size, minIdle int) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = size
		c.MinIdleConns = minIdle
	}
}

type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

// WithMemoryMaxSize bounds the number of entries; the least recently used goes first.
func WithMemoryMaxSize(n int) MemoryOption { return func(c *memoryConfig) { c.maxEntries = n } }

// WithMemoryDefaultTTL applies to Set calls without a TTL.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryOption {
	return func(c *memoryConfig) { c.defaultTTL = ttl }
}

func withClock(now func() time.Time) MemoryOption { return func(c *memoryConfig) { c.now = now } }

type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize sets the L1 entry bound.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(lc *LayeredCache) { lc.l1Size = n }
}

// WithLayeredMemoryTTL caps how long a value stays in L1.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(lc *LayeredCache) { lc.l1TTL = ttl }
}
