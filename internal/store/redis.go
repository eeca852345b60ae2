package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forgeml/orchestrator/pkg/types"
)

// RedisStore implements Store backed by Redis.
// Uses Redis Streams for event streaming, hashes for execution metadata, and
// lists for checkpoints and the audit trail.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	keep   int
	mu     sync.Mutex
	closed bool

	// Subscriber management
	subsMu sync.RWMutex
	subs   map[string]map[chan *types.Event]struct{} // execID -> set of channels
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (redis://host:port/db)
	URL string

	// Password for Redis authentication
	Password string

	// DB is the database number
	DB int

	// Prefix for all keys (default: "execs")
	Prefix string

	// TTL for execution data (default: 7 days)
	TTL time.Duration

	// CheckpointRetention bounds checkpoints kept per execution.
	CheckpointRetention int

	// Connection pool settings
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		URL:                 "redis://localhost:6379/0",
		Prefix:              "execs",
		TTL:                 7 * 24 * time.Hour,
		CheckpointRetention: 10,
		PoolSize:            10,
		MinIdleConns:        2,
		DialTimeout:         5 * time.Second,
		ReadTimeout:         3 * time.Second,
		WriteTimeout:        3 * time.Second,
	}
}

// NewRedisStore creates a new Redis-backed Store.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	opts := &redis.Options{
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Password:     cfg.Password,
		DB:           cfg.DB,
	}

	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		if parsed.Password != "" && cfg.Password == "" {
			opts.Password = parsed.Password
		}
		if parsed.DB != 0 && cfg.DB == 0 {
			opts.DB = parsed.DB
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "execs"
	}
	keep := cfg.CheckpointRetention
	if keep <= 0 {
		keep = 10
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		keep:   keep,
		subs:   make(map[string]map[chan *types.Event]struct{}),
	}, nil
}

// Key helpers
func (s *RedisStore) keyMeta(execID string) string   { return fmt.Sprintf("%s:%s:meta", s.prefix, execID) }
func (s *RedisStore) keyRuns(execID string) string   { return fmt.Sprintf("%s:%s:runs", s.prefix, execID) }
func (s *RedisStore) keySpecs(execID string) string  { return fmt.Sprintf("%s:%s:specs", s.prefix, execID) }
func (s *RedisStore) keyEvents(execID string) string { return fmt.Sprintf("%s:%s:events", s.prefix, execID) }
func (s *RedisStore) keySeq(execID string) string    { return fmt.Sprintf("%s:%s:seq", s.prefix, execID) }
func (s *RedisStore) keyCheckpoints(execID string) string {
	return fmt.Sprintf("%s:%s:checkpoints", s.prefix, execID)
}
func (s *RedisStore) keyAudit(execID string) string { return fmt.Sprintf("%s:%s:audit", s.prefix, execID) }

// setTTL refreshes TTL on all keys for an execution.
func (s *RedisStore) setTTL(ctx context.Context, execID string) error {
	if s.ttl <= 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, s.keyMeta(execID), s.ttl)
	pipe.Expire(ctx, s.keyRuns(execID), s.ttl)
	pipe.Expire(ctx, s.keySpecs(execID), s.ttl)
	pipe.Expire(ctx, s.keyEvents(execID), s.ttl)
	pipe.Expire(ctx, s.keySeq(execID), s.ttl)
	pipe.Expire(ctx, s.keyCheckpoints(execID), s.ttl)
	pipe.Expire(ctx, s.keyAudit(execID), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) CreateExecution(ctx context.Context, name string, specs []types.JobSpec) (string, error) {
	execID := generateID()
	now := time.Now().UTC()

	runs := make(map[string]*types.JobRun, len(specs))
	for _, spec := range specs {
		runs[spec.ID] = &types.JobRun{
			JobID:  spec.ID,
			Status: types.JobStatusPending,
		}
	}
	runsJSON, _ := json.Marshal(runs)
	specsJSON, _ := json.Marshal(specs)

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.keyMeta(execID), map[string]interface{}{
		"execId":    execID,
		"name":      name,
		"status":    string(types.ExecutionStatusRunning),
		"startedAt": now.Format(time.RFC3339),
		"createdAt": now.Format(time.RFC3339),
		"updatedAt": now.Format(time.RFC3339),
	})
	pipe.HSet(ctx, s.keyRuns(execID), "json", string(runsJSON))
	pipe.Set(ctx, s.keySpecs(execID), string(specsJSON), 0)
	pipe.Set(ctx, s.keySeq(execID), "0", 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	if err := s.setTTL(ctx, execID); err != nil {
		slog.Warn("failed to set TTL for execution", slog.String("execution_id", execID), slog.Any("error", err))
	}

	return execID, nil
}

func (s *RedisStore) getRuns(ctx context.Context, execID string) (map[string]*types.JobRun, error) {
	runsJSON, err := s.client.HGet(ctx, s.keyRuns(execID), "json").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("get runs: %w", err)
	}
	runs := make(map[string]*types.JobRun)
	if err := json.Unmarshal([]byte(runsJSON), &runs); err != nil {
		return nil, fmt.Errorf("unmarshal runs: %w", err)
	}
	return runs, nil
}

func (s *RedisStore) GetExecution(ctx context.Context, execID string) (*types.Execution, error) {
	pipe := s.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, s.keyMeta(execID))
	runsCmd := pipe.HGet(ctx, s.keyRuns(execID), "json")
	specsCmd := pipe.Get(ctx, s.keySpecs(execID))
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get execution: %w", err)
	}

	meta, err := metaCmd.Result()
	if err != nil || len(meta) == 0 {
		return nil, ErrExecutionNotFound
	}

	exec := &types.Execution{
		ID:     execID,
		Name:   meta["name"],
		Status: types.ExecutionStatus(meta["status"]),
		Error:  meta["error"],
		Jobs:   make(map[string]*types.JobRun),
	}
	parseMetaTimes(meta, &exec.StartedAt, &exec.CompletedAt, &exec.CreatedAt, &exec.UpdatedAt)

	if runsJSON, err := runsCmd.Result(); err == nil && runsJSON != "" {
		json.Unmarshal([]byte(runsJSON), &exec.Jobs)
	}
	if specsJSON, err := specsCmd.Result(); err == nil && specsJSON != "" {
		json.Unmarshal([]byte(specsJSON), &exec.Specs)
	}

	return exec, nil
}

func parseMetaTimes(meta map[string]string, startedAt, completedAt **time.Time, createdAt, updatedAt *time.Time) {
	if meta["startedAt"] != "" {
		if t, err := time.Parse(time.RFC3339, meta["startedAt"]); err == nil {
			*startedAt = &t
		}
	}
	if meta["completedAt"] != "" {
		if t, err := time.Parse(time.RFC3339, meta["completedAt"]); err == nil {
			*completedAt = &t
		}
	}
	if meta["createdAt"] != "" {
		if t, err := time.Parse(time.RFC3339, meta["createdAt"]); err == nil {
			*createdAt = t
		}
	}
	if meta["updatedAt"] != "" {
		if t, err := time.Parse(time.RFC3339, meta["updatedAt"]); err == nil {
			*updatedAt = t
		}
	}
}

func (s *RedisStore) ListExecutions(ctx context.Context) ([]*types.ExecutionMeta, error) {
	pattern := fmt.Sprintf("%s:*:meta", s.prefix)
	var metas []*types.ExecutionMeta
	var cursor uint64

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan executions: %w", err)
		}

		for _, key := range keys {
			// Key pattern: prefix:execID:meta
			parts := strings.Split(key, ":")
			if len(parts) < 3 {
				continue
			}
			execID := parts[1]
			meta, err := s.client.HGetAll(ctx, key).Result()
			if err != nil || len(meta) == 0 {
				continue
			}
			m := &types.ExecutionMeta{
				ID:     execID,
				Name:   meta["name"],
				Status: types.ExecutionStatus(meta["status"]),
				Error:  meta["error"],
			}
			parseMetaTimes(meta, &m.StartedAt, &m.CompletedAt, &m.CreatedAt, &m.UpdatedAt)
			metas = append(metas, m)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return metas, nil
}

func (s *RedisStore) UpdateExecutionStatus(ctx context.Context, execID string, status types.ExecutionStatus, errMsg string) error {
	exists, err := s.client.Exists(ctx, s.keyMeta(execID)).Result()
	if err != nil {
		return fmt.Errorf("check execution exists: %w", err)
	}
	if exists == 0 {
		return ErrExecutionNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339)
	fields := map[string]interface{}{
		"status":    string(status),
		"error":     errMsg,
		"updatedAt": now,
	}
	if status == types.ExecutionStatusRunning {
		if started, _ := s.client.HGet(ctx, s.keyMeta(execID), "startedAt").Result(); started == "" {
			fields["startedAt"] = now
		}
	}
	if status.Terminal() {
		fields["completedAt"] = now
	}

	if err := s.client.HSet(ctx, s.keyMeta(execID), fields).Err(); err != nil {
		return fmt.Errorf("update execution status: %w", err)
	}
	s.setTTL(ctx, execID)

	if status.Terminal() {
		s.closeSubscribers(execID)
	}
	return nil
}

func (s *RedisStore) ReplaceSpecs(ctx context.Context, execID string, specs []types.JobSpec) error {
	runs, err := s.getRuns(ctx, execID)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if _, ok := runs[spec.ID]; !ok {
			runs[spec.ID] = &types.JobRun{JobID: spec.ID, Status: types.JobStatusPending}
		}
	}

	specsJSON, _ := json.Marshal(specs)
	runsJSON, _ := json.Marshal(runs)

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.keySpecs(execID), string(specsJSON), 0)
	pipe.HSet(ctx, s.keyRuns(execID), "json", string(runsJSON))
	pipe.HSet(ctx, s.keyMeta(execID), "updatedAt", time.Now().UTC().Format(time.RFC3339))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace specs: %w", err)
	}
	s.setTTL(ctx, execID)
	return nil
}

func (s *RedisStore) UpdateJobRun(ctx context.Context, execID string, run *types.JobRun) error {
	runs, err := s.getRuns(ctx, execID)
	if err != nil {
		return err
	}

	runs[run.JobID] = run
	updatedJSON, _ := json.Marshal(runs)
	if err := s.client.HSet(ctx, s.keyRuns(execID), "json", string(updatedJSON)).Err(); err != nil {
		return fmt.Errorf("update job run: %w", err)
	}
	s.setTTL(ctx, execID)
	return nil
}

func (s *RedisStore) GetJobRun(ctx context.Context, execID, jobID string) (*types.JobRun, error) {
	runs, err := s.getRuns(ctx, execID)
	if err != nil {
		return nil, err
	}
	run, ok := runs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found in execution %s", jobID, execID)
	}
	return run, nil
}

func (s *RedisStore) SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	exists, err := s.client.Exists(ctx, s.keyMeta(cp.ExecutionID)).Result()
	if err != nil {
		return fmt.Errorf("check execution exists: %w", err)
	}
	if exists == 0 {
		return ErrExecutionNotFound
	}

	if cp.ID == "" {
		cp.ID = generateID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Append and trim to the retention window in one round trip.
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.keyCheckpoints(cp.ExecutionID), string(cpJSON))
	pipe.LTrim(ctx, s.keyCheckpoints(cp.ExecutionID), int64(-s.keep), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	s.setTTL(ctx, cp.ExecutionID)
	return nil
}

func (s *RedisStore) GetCheckpoint(ctx context.Context, execID, checkpointID string) (*types.Checkpoint, error) {
	items, err := s.client.LRange(ctx, s.keyCheckpoints(execID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get checkpoints: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrCheckpointNotFound
	}

	if checkpointID == "" {
		var cp types.Checkpoint
		if err := json.Unmarshal([]byte(items[len(items)-1]), &cp); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		return &cp, nil
	}

	for _, item := range items {
		var cp types.Checkpoint
		if err := json.Unmarshal([]byte(item), &cp); err != nil {
			continue
		}
		if cp.ID == checkpointID {
			return &cp, nil
		}
	}
	return nil, ErrCheckpointNotFound
}

func (s *RedisStore) ListCheckpoints(ctx context.Context, execID string) ([]*types.Checkpoint, error) {
	items, err := s.client.LRange(ctx, s.keyCheckpoints(execID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	out := make([]*types.Checkpoint, 0, len(items))
	for _, item := range items {
		var cp types.Checkpoint
		if err := json.Unmarshal([]byte(item), &cp); err != nil {
			continue
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (s *RedisStore) AppendAudit(ctx context.Context, entry *types.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = generateID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.keyAudit(entry.ExecutionID), string(entryJSON)).Err(); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	s.setTTL(ctx, entry.ExecutionID)
	return nil
}

func (s *RedisStore) ListAudit(ctx context.Context, execID string) ([]*types.AuditEntry, error) {
	items, err := s.client.LRange(ctx, s.keyAudit(execID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}

	out := make([]*types.AuditEntry, 0, len(items))
	for _, item := range items {
		var entry types.AuditEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, execID string, input *types.EventInput) (*types.Event, error) {
	seq, err := s.client.Incr(ctx, s.keySeq(execID)).Result()
	if err != nil {
		return nil, fmt.Errorf("incr seq: %w", err)
	}

	now := time.Now().UTC()
	eventID := strconv.FormatInt(seq, 10)
	dataBytes, _ := json.Marshal(input.Data)

	event := &types.Event{
		ID:          eventID,
		ExecutionID: execID,
		Type:        input.Type,
		JobID:       input.JobID,
		Timestamp:   now,
		Data:        dataBytes,
	}

	streamFields := map[string]interface{}{
		"seq":   eventID,
		"ts":    now.Format(time.RFC3339),
		"type":  string(input.Type),
		"data":  string(dataBytes),
		"jobId": input.JobID,
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.keyEvents(execID),
		MaxLen: 5000,
		Approx: true,
		Values: streamFields,
	}).Err(); err != nil {
		return nil, fmt.Errorf("xadd: %w", err)
	}

	s.setTTL(ctx, execID)
	s.notifySubscribers(execID, event)

	return event, nil
}

func (s *RedisStore) GetEventsSince(ctx context.Context, execID, lastEventID string) ([]*types.Event, error) {
	entries, err := s.client.XRange(ctx, s.keyEvents(execID), "-", "+").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*types.Event{}, nil
		}
		return nil, fmt.Errorf("xrange: %w", err)
	}

	var lastSeq int64
	if lastEventID != "" {
		lastSeq, _ = strconv.ParseInt(lastEventID, 10, 64)
	}

	var events []*types.Event
	for _, entry := range entries {
		seqStr, _ := entry.Values["seq"].(string)
		seq, _ := strconv.ParseInt(seqStr, 10, 64)
		if lastSeq > 0 && seq <= lastSeq {
			continue
		}
		events = append(events, streamEntryToEvent(execID, seqStr, entry.Values))
	}
	return events, nil
}

func streamEntryToEvent(execID, seqStr string, values map[string]interface{}) *types.Event {
	ts, _ := values["ts"].(string)
	timestamp, _ := time.Parse(time.RFC3339, ts)
	eventType, _ := values["type"].(string)
	data, _ := values["data"].(string)
	jobID, _ := values["jobId"].(string)

	return &types.Event{
		ID:          seqStr,
		ExecutionID: execID,
		Type:        types.EventType(eventType),
		JobID:       jobID,
		Timestamp:   timestamp,
		Data:        json.RawMessage(data),
	}
}

func (s *RedisStore) Subscribe(ctx context.Context, execID string) (<-chan *types.Event, func(), error) {
	exists, err := s.client.Exists(ctx, s.keyMeta(execID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("check execution exists: %w", err)
	}
	if exists == 0 {
		return nil, nil, ErrExecutionNotFound
	}

	ch := make(chan *types.Event, 100)

	s.subsMu.Lock()
	if s.subs[execID] == nil {
		s.subs[execID] = make(map[chan *types.Event]struct{})
	}
	s.subs[execID][ch] = struct{}{}
	s.subsMu.Unlock()

	go s.streamReader(ctx, execID, ch)

	cleanup := func() {
		s.subsMu.Lock()
		delete(s.subs[execID], ch)
		if len(s.subs[execID]) == 0 {
			delete(s.subs, execID)
		}
		s.subsMu.Unlock()
	}

	return ch, cleanup, nil
}

// streamReader reads from the Redis Stream and pushes to the channel.
func (s *RedisStore) streamReader(ctx context.Context, execID string, ch chan *types.Event) {
	lastID := "$" // Start from latest

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.keyEvents(execID), lastID},
			Count:   10,
			Block:   time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, stream := range streams {
			for _, entry := range stream.Messages {
				lastID = entry.ID
				seqStr, _ := entry.Values["seq"].(string)
				event := streamEntryToEvent(execID, seqStr, entry.Values)

				select {
				case ch <- event:
				case <-ctx.Done():
					return
				default:
					// Channel full, skip event
				}
			}
		}
	}
}

// notifySubscribers sends an event to all subscribers for an execution.
func (s *RedisStore) notifySubscribers(execID string, event *types.Event) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for ch := range s.subs[execID] {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

func (s *RedisStore) closeSubscribers(execID string) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for ch := range s.subs[execID] {
		close(ch)
	}
	delete(s.subs, execID)
}

// AdapterInfo returns diagnostic information.
func (s *RedisStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	pingStart := time.Now()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return map[string]interface{}{
			"adapter": "redis",
			"healthy": false,
			"error":   err.Error(),
		}, nil
	}
	pingLatency := time.Since(pingStart)

	poolStats := s.client.PoolStats()

	return map[string]interface{}{
		"adapter": "redis",
		"healthy": true,
		"details": map[string]interface{}{
			"prefix":       s.prefix,
			"ttl_hours":    s.ttl.Hours(),
			"ping_latency": pingLatency.String(),
			"pool": map[string]interface{}{
				"hits":       poolStats.Hits,
				"misses":     poolStats.Misses,
				"timeouts":   poolStats.Timeouts,
				"total_conn": poolStats.TotalConns,
				"idle_conn":  poolStats.IdleConns,
				"stale_conn": poolStats.StaleConns,
			},
		},
	}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.client.Close()
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
