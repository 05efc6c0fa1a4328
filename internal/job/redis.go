package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisRepository implements Repository.
var _ Repository = (*RedisRepository)(nil)

// jobKeyPrefix namespaces job records inside a shared Redis instance.
const jobKeyPrefix = "autocrop:job:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string        // Redis server address (host:port)
	Password string        // Redis password (optional)
	DB       int           // Redis database number
	TTL      time.Duration // how long finished job records stick around
}

// RedisRepository is a Redis-backed implementation of Repository. Job
// records are stored as JSON documents with a TTL, so restarting the
// server does not lose job history and old records expire on their own.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisRepository connects to Redis and verifies the connection with
// a ping before returning the repository.
func NewRedisRepository(cfg RedisConfig, logger *slog.Logger) (*RedisRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("connected to redis",
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
	)

	return &RedisRepository{
		client: client,
		ttl:    cfg.TTL,
		logger: logger,
	}, nil
}

// Save persists a job as a JSON document. The TTL is refreshed on every
// save, so a record expires relative to its last update.
func (r *RedisRepository) Save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job.Clone())
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	if err := r.client.Set(ctx, jobKeyPrefix+job.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// FindByID retrieves a job by its ID.
// Returns ErrJobNotFound if the key is missing or has expired.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// List returns all stored jobs, scanning the key space incrementally so
// large instances are not blocked by a KEYS call.
func (r *RedisRepository) List(ctx context.Context) ([]*Job, error) {
	var jobs []*Job

	iter := r.client.Scan(ctx, 0, jobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			// Key expired between scan and get.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}

		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			r.logger.Warn("skipping undecodable job record",
				slog.String("key", iter.Val()),
				slog.Any("error", err),
			)
			continue
		}
		jobs = append(jobs, &job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	return jobs, nil
}

// Delete removes a job record.
// Returns ErrJobNotFound if the job does not exist.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, jobKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if deleted == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
