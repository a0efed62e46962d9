package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"stream-pipeline/internal/logging"
)

// Disposition tells the consume loop what to do with the message's
// offset after the handler returns.
type Disposition int

const (
	// Commit marks the message handled (or deliberately skipped); its
	// offset is committed and it will not be redelivered.
	Commit Disposition = iota
	// Redeliver leaves the offset uncommitted so the broker delivers
	// the message again after a rebalance or restart.
	Redeliver
)

// Handler processes one message and reports what to do with its offset.
type Handler func(ctx context.Context, msg *kafka.Message) Disposition

// ConsumerOptions tunes a group consumer.
type ConsumerOptions struct {
	// FromBeginning starts a new group at the earliest retained offset,
	// so the consumer drains any backlog built before it existed.
	FromBeginning bool
	// SessionTimeout bounds how long the broker waits for liveness
	// before triggering redelivery. Zero uses 5 minutes, matching the
	// long-running encode tasks this pipeline carries.
	SessionTimeout time.Duration
}

// Consumer is one group member on a set of topics.
type Consumer struct {
	c       *kafka.Consumer
	groupID string
}

// NewGroupConsumer joins groupID with manual offset commits.
func (c *Client) NewGroupConsumer(groupID string, opts ConsumerOptions) (*Consumer, error) {
	reset := "latest"
	if opts.FromBeginning {
		reset = "earliest"
	}
	session := opts.SessionTimeout
	if session == 0 {
		session = 5 * time.Minute
	}

	kc, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":    c.brokers,
		"client.id":            c.clientID,
		"group.id":             groupID,
		"enable.auto.commit":   false,
		"auto.offset.reset":    reset,
		"session.timeout.ms":   int(session / time.Millisecond),
		"max.poll.interval.ms": int(2 * session / time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for group %s: %w", groupID, err)
	}
	return &Consumer{c: kc, groupID: groupID}, nil
}

// Subscribe joins the given topics.
func (k *Consumer) Subscribe(topics ...string) error {
	if err := k.c.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("subscribe %v: %w", topics, err)
	}
	return nil
}

// Run pulls messages until ctx is cancelled, invoking handler for each
// and committing offsets per the returned disposition. Handler errors
// never terminate the loop.
func (k *Consumer) Run(ctx context.Context, handler Handler) {
	for ctx.Err() == nil {
		ev := k.c.Poll(200)
		if ev == nil {
			continue
		}
		switch e := ev.(type) {
		case *kafka.Message:
			k.handle(ctx, e, handler)
		case kafka.Error:
			// Client errors are mostly informational; the library
			// recovers transient broker trouble itself.
			if e.IsFatal() {
				logging.Error("[%s] Fatal consumer error: %v", k.groupID, e)
				return
			}
			logging.Warn("[%s] Consumer error: %v", k.groupID, e)
		}
	}
}

// handle runs the handler while keeping the broker session alive.
// The assignment is paused and the poll loop kept spinning for the
// duration of the handler, so a long-running encode cannot trip the
// max-poll deadline and trigger redelivery mid-task.
func (k *Consumer) handle(ctx context.Context, msg *kafka.Message, handler Handler) {
	assignment, err := k.c.Assignment()
	if err == nil && len(assignment) > 0 {
		if err := k.c.Pause(assignment); err != nil {
			logging.Warn("[%s] Failed to pause assignment: %v", k.groupID, err)
		}
	}

	done := make(chan Disposition, 1)
	go func() {
		done <- handler(ctx, msg)
	}()

	var disposition Disposition
keepalive:
	for {
		select {
		case disposition = <-done:
			break keepalive
		default:
			// Paused partitions deliver no messages; polling here only
			// services the session.
			k.c.Poll(100)
		}
	}

	if err == nil && len(assignment) > 0 {
		if err := k.c.Resume(assignment); err != nil {
			logging.Warn("[%s] Failed to resume assignment: %v", k.groupID, err)
		}
	}

	if disposition == Commit {
		if _, err := k.c.CommitMessage(msg); err != nil {
			logging.Error("[%s] Failed to commit offset %v: %v", k.groupID, msg.TopicPartition, err)
		}
	}
}

// Close leaves the group.
func (k *Consumer) Close() error {
	return k.c.Close()
}
