package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/rabbitmq"
)

type ChatRecordWriter interface {
	Create(ctx context.Context, record *model.ChatRecord) error
}

// HistoryInvalidator drops the cached history once a record is durable.
type HistoryInvalidator interface {
	DeleteHistory(ctx context.Context) error
}

// ChatRecordPersistWorker consumes published chat records and writes them to
// the database.
type ChatRecordPersistWorker struct {
	conn      *amqp.Connection
	repo      ChatRecordWriter
	cache     HistoryInvalidator
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChatRecordPersistWorker(conn *amqp.Connection, repo ChatRecordWriter, cache HistoryInvalidator, queueName string) *ChatRecordPersistWorker {
	return &ChatRecordPersistWorker{
		conn:      conn,
		repo:      repo,
		cache:     cache,
		queueName: queueName,
	}
}

func (w *ChatRecordPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					log.Printf("worker persist chat record failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *ChatRecordPersistWorker) handle(ctx context.Context, body []byte) error {
	var record model.ChatRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return fmt.Errorf("decode chat record failed: %w", err)
	}
	if record.ID == "" {
		return fmt.Errorf("chat record without id")
	}
	if err := w.repo.Create(ctx, &record); err != nil {
		return err
	}
	if w.cache != nil {
		_ = w.cache.DeleteHistory(ctx)
	}
	return nil
}

func (w *ChatRecordPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
