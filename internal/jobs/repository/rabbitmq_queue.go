package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

type jobMessage struct {
	JobID string `json:"job_id"`
}

type rabbitQueue struct {
	conn     *amqp.Connection
	queue    string
	prefetch int

	pubMu sync.Mutex
	pubCh *amqp.Channel

	consumeOnce sync.Once
	consumeErr  error
	consCh      *amqp.Channel
	msgs        <-chan amqp.Delivery
}

// NewRabbitQueue declares the durable job queue and its dead letter queue.
// Messages rejected without requeue end up in <queue>.dlq.
func NewRabbitQueue(conn *amqp.Connection, queue string, prefetch int) (jobs.Queue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "rabbitQueue.Channel")
	}
	dlq := queue + ".dlq"
	if _, err = ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "rabbitQueue.QueueDeclare.dlq")
	}
	if _, err = ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		_ = ch.Close()
		return nil, errors.Wrap(err, "rabbitQueue.QueueDeclare")
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &rabbitQueue{conn: conn, queue: queue, prefetch: prefetch, pubCh: ch}, nil
}

func (q *rabbitQueue) Enqueue(ctx context.Context, jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	err = q.pubCh.PublishWithContext(cctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "rabbitQueue.Enqueue.PublishWithContext")
	}
	return nil
}

func (q *rabbitQueue) startConsumer() error {
	q.consumeOnce.Do(func() {
		ch, err := q.conn.Channel()
		if err != nil {
			q.consumeErr = errors.Wrap(err, "rabbitQueue.consumer.Channel")
			return
		}
		if err = ch.Qos(q.prefetch, 0, false); err != nil {
			_ = ch.Close()
			q.consumeErr = errors.Wrap(err, "rabbitQueue.consumer.Qos")
			return
		}
		msgs, err := ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			_ = ch.Close()
			q.consumeErr = errors.Wrap(err, "rabbitQueue.consumer.Consume")
			return
		}
		q.consCh = ch
		q.msgs = msgs
	})
	return q.consumeErr
}

func (q *rabbitQueue) Dequeue(ctx context.Context) (*jobs.Delivery, error) {
	if err := q.startConsumer(); err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-q.msgs:
			if !ok {
				return nil, ErrQueueClosed
			}
			var m jobMessage
			if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
				_ = d.Nack(false, false)
				continue
			}
			return jobs.NewDelivery(m.JobID,
				func() error { return d.Ack(false) },
				func(requeue bool) error { return d.Nack(false, requeue) },
			), nil
		}
	}
}

func (q *rabbitQueue) Close() error {
	if q.consCh != nil {
		_ = q.consCh.Close()
	}
	if q.pubCh != nil {
		return q.pubCh.Close()
	}
	return nil
}
