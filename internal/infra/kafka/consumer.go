// Package kafka feeds game-ended events from the game engine's topic into
// the game-end pipeline.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/logger"
)

// GameEndedHandler processes one game-ended event. Duplicate events must be
// absorbed by the handler.
type GameEndedHandler interface {
	HandleGameEnded(ctx context.Context, ev domain.GameEndedEvent) error
}

// Config configures the consumer group.
type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	HandlerTimeout time.Duration
}

// Consumer reads game-ended events from Kafka.
type Consumer struct {
	cfg     Config
	handler GameEndedHandler
	log     *logger.Logger
	group   sarama.ConsumerGroup

	closeOnce sync.Once
}

// NewConsumer joins the consumer group. No messages are read until Start.
func NewConsumer(cfg Config, handler GameEndedHandler, log *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("kafka: brokers, topic and group id are required")
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V3_0_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: join group %s: %w", cfg.GroupID, err)
	}
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		log:     log.With("component", "kafka", "topic", cfg.Topic),
		group:   group,
	}, nil
}

// Start consumes until ctx is cancelled. It rejoins the group after every
// rebalance.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("kafka consumer starting", "brokers", c.cfg.Brokers, "group_id", c.cfg.GroupID)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-c.group.Errors():
				if !ok {
					return
				}
				c.log.Error("consumer group error", "error", err)
			}
		}
	}()

	h := &groupHandler{c: c}
	for {
		if err := c.group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Error("consume failed", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.log.Info("kafka consumer stopping")
		err = c.group.Close()
	})
	return err
}

// handle decodes and dispatches one message. The returned error is only
// for logging; every message is marked regardless so a poison message
// cannot stall the partition.
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	ev, err := decodeGameEnded(value)
	if err != nil {
		return err
	}
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
	defer cancel()
	if err := c.handler.HandleGameEnded(hctx, ev); err != nil {
		return fmt.Errorf("session %s: %w", ev.SessionID, err)
	}
	return nil
}

func decodeGameEnded(value []byte) (domain.GameEndedEvent, error) {
	var ev domain.GameEndedEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return ev, fmt.Errorf("%w: decode game-ended event: %v", domain.ErrValidation, err)
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	c *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.c.log.Info("kafka consumer ready")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.c.handle(session.Context(), msg.Value); err != nil {
				h.c.log.Warn("game-ended event dropped",
					"error", err,
					"partition", msg.Partition,
					"offset", msg.Offset,
				)
			}
			session.MarkMessage(msg, "")
		}
	}
}
