package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"reverie/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// BuildJob tracks one scheduled dream-construction attempt. Date is the
// calendar day (reference timezone) the build is for.
type BuildJob struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Date         string    `json:"date"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RedisBuildQueue feeds the nightly construction trigger through a Redis
// stream with a consumer group. Job status lives in a TTL'd hash so the
// scheduler can inspect outcomes without an extra store.
type RedisBuildQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

type BuildQueueConfig struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewRedisBuildQueue(cfg BuildQueueConfig) (*RedisBuildQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "reverie:dream:build"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "builders"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	jobTTL := cfg.JobTTL
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	readCount := cfg.ReadCount
	if readCount <= 0 {
		readCount = 10
	}
	claimCount := cfg.ClaimCount
	if claimCount <= 0 {
		claimCount = 10
	}

	return &RedisBuildQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       jobTTL,
		maxRetries:   maxRetries,
		block:        block,
		claimIdle:    claimIdle,
		retryDelay:   retryDelay,
		maxLen:       maxLen,
		readCount:    readCount,
		claimCount:   claimCount,
	}, nil
}

// Enqueue schedules one build attempt for (userID, date).
func (q *RedisBuildQueue) Enqueue(ctx context.Context, userID, date string) (BuildJob, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return BuildJob{}, errors.New("userId required")
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return BuildJob{}, errors.New("date required")
	}
	job := BuildJob{
		ID:        util.NewID(),
		UserID:    userID,
		Date:      date,
		Status:    StatusQueued,
		Attempts:  0,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return BuildJob{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":  job.ID,
			"user_id": job.UserID,
			"date":    job.Date,
		},
	}).Err(); err != nil {
		return BuildJob{}, err
	}
	return job, nil
}

// GetJob reads a job's current status.
func (q *RedisBuildQueue) GetJob(ctx context.Context, jobID string) (BuildJob, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return BuildJob{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return BuildJob{}, false, err
	}
	if len(data) == 0 {
		return BuildJob{}, false, nil
	}
	return decodeBuildJob(jobID, data), true, nil
}

// Start launches consumer goroutines until ctx is cancelled.
func (q *RedisBuildQueue) Start(ctx context.Context, concurrency int, handler func(context.Context, BuildJob) error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisBuildQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("create consumer group", "stream", q.stream, "group", q.group, "err", err)
		}
	})
}

func (q *RedisBuildQueue) consumeLoop(ctx context.Context, consumer string, handler func(context.Context, BuildJob) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisBuildQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *RedisBuildQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler func(context.Context, BuildJob) error) {
	jobID, _ := msg.Values["job_id"].(string)
	userID, _ := msg.Values["user_id"].(string)
	date, _ := msg.Values["date"].(string)
	if jobID == "" || userID == "" || date == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markProcessing(ctx, jobID, userID, date)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if err := handler(ctx, job); err == nil {
		_ = q.markDone(ctx, jobID)
		q.ackAndDel(ctx, msg.ID)
		return
	} else if job.Attempts >= q.maxRetries {
		_ = q.markFailed(ctx, jobID, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	} else {
		_ = q.markQueued(ctx, jobID, err.Error())
	}
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	_ = q.requeueAndAck(ctx, msg.ID, jobID, userID, date)
}

func (q *RedisBuildQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisBuildQueue) requeueAndAck(ctx context.Context, msgID, jobID, userID, date string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":  jobID,
			"user_id": userID,
			"date":    date,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisBuildQueue) markProcessing(ctx context.Context, jobID, userID, date string) (BuildJob, error) {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return BuildJob{}, err
	}
	if job.ID == "" {
		job = BuildJob{ID: jobID}
	}
	job.UserID = userID
	job.Date = date
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return BuildJob{}, err
	}
	return job, nil
}

func (q *RedisBuildQueue) markQueued(ctx context.Context, jobID, errMsg string) error {
	return q.setStatus(ctx, jobID, StatusQueued, errMsg)
}

func (q *RedisBuildQueue) markDone(ctx context.Context, jobID string) error {
	return q.setStatus(ctx, jobID, StatusDone, "")
}

func (q *RedisBuildQueue) markFailed(ctx context.Context, jobID, errMsg string) error {
	return q.setStatus(ctx, jobID, StatusFailed, errMsg)
}

func (q *RedisBuildQueue) setStatus(ctx context.Context, jobID, status, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *RedisBuildQueue) writeStatus(ctx context.Context, job BuildJob) error {
	payload := map[string]any{
		"id":        job.ID,
		"userId":    job.UserID,
		"date":      job.Date,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, q.jobKey(job.ID), payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, q.jobKey(job.ID), q.jobTTL).Err()
	return nil
}

func (q *RedisBuildQueue) jobKey(jobID string) string {
	return fmt.Sprintf("reverie:buildjob:%s:%s", q.stream, jobID)
}

func decodeBuildJob(jobID string, data map[string]string) BuildJob {
	job := BuildJob{ID: jobID}
	job.UserID = data["userId"]
	job.Date = data["date"]
	job.Status = data["status"]
	job.ErrorMessage = data["error"]
	if v := data["attempts"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			job.Attempts = n
		}
	}
	if v := data["createdAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.CreatedAt = t
		}
	}
	if v := data["updatedAt"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			job.UpdatedAt = t
		}
	}
	return job
}
