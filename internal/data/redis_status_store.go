package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/itinerary/internal/core"
	"github.com/target/itinerary/internal/domain/model"
	apperrors "github.com/target/itinerary/internal/errors"
)

const defaultStatusKeyPrefix = "itinerary:job_status:"

// RedisStatusStoreOptions configures a RedisStatusStore.
type RedisStatusStoreOptions struct {
	KeyPrefix string
	// TTL bounds how long a status survives after its last update; zero keeps it forever.
	TTL time.Duration
}

// RedisStatusStore keeps the latest JobStatusUpdate of each job in a Redis hash.
type RedisStatusStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ core.StatusStore = (*RedisStatusStore)(nil)

// NewRedisStatusStore creates a RedisStatusStore with the given Redis client.
func NewRedisStatusStore(client redis.UniversalClient, opts RedisStatusStoreOptions) *RedisStatusStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultStatusKeyPrefix
	}
	return &RedisStatusStore{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *RedisStatusStore) key(jobID string) string {
	return s.prefix + jobID
}

// putStatusScript replaces the status hash of KEYS[1] and refreshes its TTL. An advisory update
// (ARGV[7] == "1") is dropped when the stored status is one of ARGV[8:]. Returns 1 when written.
//
// ARGV: job_id, status, timestamp, has_details, details, ttl_ms, advisory, terminal statuses...
var putStatusScript = redis.NewScript(`
if ARGV[7] == '1' then
  local current = redis.call('HGET', KEYS[1], 'status')
  if current then
    for i = 8, #ARGV do
      if current == ARGV[i] then
        return 0
      end
    end
  end
end
redis.call('HSET', KEYS[1], 'job_id', ARGV[1], 'status', ARGV[2], 'timestamp', ARGV[3])
if ARGV[4] == '1' then
  redis.call('HSET', KEYS[1], 'details', ARGV[5])
else
  redis.call('HDEL', KEYS[1], 'details')
end
local ttl = tonumber(ARGV[6])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// Put replaces the job's status hash and refreshes its TTL atomically. A branch_resolved update
// never replaces a terminal status, so a late branch mirror write cannot hide the outcome.
func (s *RedisStatusStore) Put(ctx context.Context, update model.JobStatusUpdate) error {
	if s == nil || s.client == nil {
		return ErrRepoNotConfigured
	}
	if update.JobID == "" {
		return ErrJobIDRequired
	}

	hasDetails, details := "0", ""
	if update.Details != nil {
		hasDetails, details = "1", *update.Details
	}
	advisory := "0"
	if update.Status == model.JobStatusBranchResolved {
		advisory = "1"
	}
	args := []any{
		update.JobID,
		string(update.Status),
		update.Timestamp.UTC().Format(time.RFC3339Nano),
		hasDetails,
		details,
		s.ttl.Milliseconds(),
		advisory,
		string(model.JobStatusCompleted),
		string(model.JobStatusFailed),
	}
	if err := putStatusScript.Run(ctx, s.client, []string{s.key(update.JobID)}, args...).Err(); err != nil {
		return fmt.Errorf("redis put status: %w", err)
	}
	return nil
}

// Get returns the latest status of a job, or a NotFound AppError.
func (s *RedisStatusStore) Get(ctx context.Context, jobID string) (*model.JobStatusUpdate, error) {
	if s == nil || s.client == nil {
		return nil, ErrRepoNotConfigured
	}
	if jobID == "" {
		return nil, ErrJobIDRequired
	}

	fields, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get status: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperrors.Wrap(ErrStatusNotFound, apperrors.ErrCodeNotFound, "no status recorded for job "+jobID)
	}

	update := &model.JobStatusUpdate{
		JobID:  fields["job_id"],
		Status: model.JobStatus(fields["status"]),
	}
	if ts, ok := fields["timestamp"]; ok {
		parsed, parseErr := time.Parse(time.RFC3339Nano, ts)
		if parseErr != nil {
			return nil, fmt.Errorf("parse status timestamp: %w", parseErr)
		}
		update.Timestamp = parsed
	}
	if details, ok := fields["details"]; ok {
		update.Details = &details
	}
	return update, nil
}
