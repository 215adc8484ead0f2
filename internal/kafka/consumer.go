package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-order-timing/internal/logger"
)

// Handler returns nil only when the message is done and its offset may be
// committed.
type Handler func(ctx context.Context, m kafka.Message) error

const maxAttempts = 3

// reader is the part of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       reader
	log     *logger.Logger
	workers int
	backoff time.Duration // before the second attempt; doubles after that
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *logger.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, log: log, workers: workers, backoff: 200 * time.Millisecond}
}

// Start fetches until ctx ends. A handler error is retried a few times with
// backoff; if it still fails, Start returns it without committing so the
// message is redelivered after restart. With more than one worker, messages of
// the same order may be handled out of order; status events need workers=1.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan kafka.Message, 64)
	fatal := make(chan error, c.workers)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if err := c.handle(ctx, h, m); err != nil {
					fatal <- err
					cancel()
					return
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Warn().Err(err).Str("topic", m.Topic).Msg("commit failed")
				}
			}
		}()
	}

	err := c.dispatch(ctx, jobs)
	close(jobs)
	wg.Wait()

	select {
	case ferr := <-fatal:
		return ferr
	default:
		return err
	}
}

func (c *Consumer) dispatch(ctx context.Context, jobs chan<- kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	backoff := c.backoff
	var err error
	for attempt := 1; ; attempt++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		c.log.Warn().Err(err).Str("topic", m.Topic).Int("partition", m.Partition).Int("attempt", attempt).Msg("handler failed")
		if attempt == maxAttempts {
			return err
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return err
		}
	}
}
