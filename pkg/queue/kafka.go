package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const flushTimeoutMs = 10000

// KafkaPublisher is a synchronous Kafka-backed Publisher. Publish blocks
// until a delivery receipt arrives, so a crawl never outruns its event
// stream; with one small message per depth the added latency is noise next
// to the fetch politeness delay.
type KafkaPublisher struct {
	producer *kafka.Producer
	log      *zap.SugaredLogger
	done     chan struct{}
	drained  chan struct{}
	once     sync.Once
}

// NewKafkaPublisher creates a publisher connected to the brokers in conf.
func NewKafkaPublisher(conf *kafka.ConfigMap, log *zap.SugaredLogger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	q := &KafkaPublisher{
		producer: p,
		log:      log,
		done:     make(chan struct{}),
		drained:  make(chan struct{}),
	}
	go q.drainEvents()
	return q, nil
}

// Publish sends the message and waits for the delivery receipt. A full
// producer queue is retried until the context is cancelled; all other
// producer errors are returned as-is.
func (q *KafkaPublisher) Publish(ctx context.Context, msg Msg) error {
	deliveryCh := make(chan kafka.Event, 1)

	kMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &msg.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   msg.Key,
		Value: msg.Value,
	}
	for k, v := range msg.Headers {
		kMsg.Headers = append(kMsg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	for {
		err := q.producer.Produce(kMsg, deliveryCh)
		if err == nil {
			break
		}
		if kErr, ok := err.(kafka.Error); ok && kErr.Code() == kafka.ErrQueueFull {
			q.log.Warn("producer queue full, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}
		return fmt.Errorf("produce to %s: %w", msg.Topic, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-deliveryCh:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event: %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("delivery to %s failed: %w", msg.Topic, m.TopicPartition.Error)
		}
		return nil
	}
}

// Close flushes pending messages and closes the producer.
func (q *KafkaPublisher) Close(ctx context.Context) {
	q.once.Do(func() {
		close(q.done)
		<-q.drained

		for q.producer.Flush(flushTimeoutMs) > 0 {
			q.log.Warn("producer queue not flushed, retrying")
			select {
			case <-ctx.Done():
				q.log.Info("context done, abandoning producer flush")
				q.producer.Close()
				return
			default:
			}
		}
		q.producer.Close()
	})
}

// drainEvents logs stray producer events. Delivery receipts are consumed in
// Publish; anything arriving here is either a transport-level error or an
// event for a message whose Publish already gave up.
func (q *KafkaPublisher) drainEvents() {
	defer close(q.drained)
	for {
		select {
		case <-q.done:
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case kafka.Error:
				if e.IsFatal() {
					q.log.Errorw("fatal kafka error", "code", e.Code(), "error", e)
				} else {
					q.log.Warnw("kafka error", "code", e.Code(), "error", e)
				}
			default:
				q.log.Debugf("ignoring producer event: %v", ev)
			}
		}
	}
}
