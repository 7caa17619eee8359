package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/avi3tal/agentrunner/internal/logging"
	"github.com/avi3tal/agentrunner/internal/record"
)

const (
	defaultBlock = 5 * time.Second
	consumerTag  = "agent_worker"
)

// broker is the slice of the Redis client the consumer needs.
type broker interface {
	CreateStreamGroup(ctx context.Context, stream, group string) error
	ReadFromStreamGroup(ctx context.Context, group, consumer, stream string, count int64, block time.Duration) ([]redis.XMessage, error)
	AckStreamMessage(ctx context.Context, stream, group, messageID string) error
}

// snapshotSource loads the current workflow snapshot for a run, if any.
type snapshotSource interface {
	Snapshot(ctx context.Context, runID string) (record.Map, error)
}

// Consumer pops jobs from an agent job stream under a consumer group.
// Each Consumer owns a unique consumer name within the group, so multiple
// worker processes can share one stream without duplicate delivery.
type Consumer struct {
	broker    broker
	snapshots snapshotSource
	stream    string
	group     string
	name      string
	block     time.Duration
	log       *logging.Logger
}

// NewConsumer builds a consumer with a fresh consumer name.
func NewConsumer(b broker, snapshots snapshotSource, stream, group string, log *logging.Logger) *Consumer {
	return &Consumer{
		broker:    b,
		snapshots: snapshots,
		stream:    stream,
		group:     group,
		name:      consumerTag + "_" + uuid.New().String()[:8],
		block:     defaultBlock,
		log:       log,
	}
}

// Name returns the unique consumer name within the group.
func (c *Consumer) Name() string { return c.name }

// Init ensures the stream and consumer group exist.
func (c *Consumer) Init(ctx context.Context) error {
	if err := c.broker.CreateStreamGroup(ctx, c.stream, c.group); err != nil {
		return errors.Wrapf(err, "failed to create group %s on stream %s", c.group, c.stream)
	}
	return nil
}

// Pop reads the next job from the stream. It blocks up to the configured
// block interval and returns (nil, nil) when no job arrived in time.
// Malformed tokens are acked immediately so they cannot wedge the group,
// and Pop reports them as a quiet miss rather than an error.
func (c *Consumer) Pop(ctx context.Context) (*Job, error) {
	msgs, err := c.broker.ReadFromStreamGroup(ctx, c.group, c.name, c.stream, 1, c.block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read from job stream")
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	msg := msgs[0]
	payload, ok := msg.Values["token"].(string)
	if !ok {
		c.log.Error("stream message has no token field", "message_id", msg.ID, "stream", c.stream)
		c.ackQuietly(ctx, msg.ID)
		return nil, nil
	}

	job, err := decodeToken(payload)
	if err != nil {
		c.log.Error("dropping malformed token", "message_id", msg.ID, "error", err)
		c.ackQuietly(ctx, msg.ID)
		return nil, nil
	}
	job.MessageID = msg.ID
	if job.Context == nil {
		job.Context = record.Map{}
	}

	if c.snapshots != nil {
		snapshot, err := c.snapshots.Snapshot(ctx, job.RunID)
		if err != nil {
			c.log.Error("failed to load workflow snapshot", "run_id", job.RunID, "error", err)
		} else if snapshot != nil {
			job.CurrentWorkflow = snapshot
		}
	}

	c.log.Debug("popped job", "job_id", job.JobID, "run_id", job.RunID, "node_id", job.NodeID)
	return job, nil
}

// Ack acknowledges a processed job so the group never redelivers it.
func (c *Consumer) Ack(ctx context.Context, job *Job) error {
	if job.MessageID == "" {
		return nil
	}
	if err := c.broker.AckStreamMessage(ctx, c.stream, c.group, job.MessageID); err != nil {
		return errors.Wrapf(err, "failed to ack message %s", job.MessageID)
	}
	return nil
}

func (c *Consumer) ackQuietly(ctx context.Context, id string) {
	if err := c.broker.AckStreamMessage(ctx, c.stream, c.group, id); err != nil {
		c.log.Error("failed to ack dropped message", "message_id", id, "error", err)
	}
}
