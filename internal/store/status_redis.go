package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultTTL keeps finished job status around for pollers.
const DefaultTTL = 24 * time.Hour

// Status is the externally visible progress of one conversion job.
type Status struct {
	State    string                 `json:"state"`
	Current  int                    `json:"current"`
	Total    int                    `json:"total"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message"`
	Start    *time.Time             `json:"start_time,omitempty"`
	End      *time.Time             `json:"end_time,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStatusWithClient(c), nil
}

// NewRedisStatusWithClient wraps an existing client.
func NewRedisStatusWithClient(c *redis.Client) *RedisStatus {
	return &RedisStatus{client: c, keyNS: "job", ttl: DefaultTTL}
}

// Key returns the hash key holding jobID's status.
func (s *RedisStatus) Key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	key := s.Key(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, statusFields(st))
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.Key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return parseStatus(res), true, nil
}

func (s *RedisStatus) Close() error { return s.client.Close() }

// Percent is current/total as a whole percentage, 0 when total is unknown.
func Percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	p := current * 100 / total
	if p > 100 {
		p = 100
	}
	return p
}

func statusFields(st Status) map[string]interface{} {
	m := map[string]interface{}{
		"state":    st.State,
		"current":  st.Current,
		"total":    st.Total,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	return m
}

func parseStatus(res map[string]string) Status {
	st := Status{State: res["state"], Message: res["message"]}
	// unparsable counters read as 0
	st.Current, _ = strconv.Atoi(res["current"])
	st.Total, _ = strconv.Atoi(res["total"])
	st.Progress, _ = strconv.Atoi(res["progress"])
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st
}
