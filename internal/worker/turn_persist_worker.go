package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"docchat/internal/logger"
	"docchat/internal/model"
)

type TurnStore interface {
	AppendTurns(ctx context.Context, pair model.TurnPair) error
}

// TurnPersistWorker consumes turn pairs from the queue and writes each pair
// in one transaction.
type TurnPersistWorker struct {
	conn      *amqp.Connection
	store     TurnStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnPersistWorker(conn *amqp.Connection, store TurnStore, queueName string) *TurnPersistWorker {
	return &TurnPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
	}
}

func (w *TurnPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

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
				w.handle(workerCtx, d)
			}
		}
	}()

	logger.Info("worker: turn persistence started", "queue", w.queueName)
	return nil
}

func (w *TurnPersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	var pair model.TurnPair
	if err := json.Unmarshal(d.Body, &pair); err != nil {
		logger.Error("worker: decode turn pair failed", "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := w.store.AppendTurns(ctx, pair); err != nil {
		logger.Error("worker: persist turn pair failed", "session_id", pair.SessionID, "error", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (w *TurnPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
