package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// OutboxRelay 定时扫描发件箱，将待投递事件写入 Kafka 后标记已发送
type OutboxRelay struct {
	db       *gorm.DB
	writer   *kafka.Writer
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

func NewOutboxRelay(db *gorm.DB, brokers []string, topic string, interval time.Duration, batch int, logger *slog.Logger) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &OutboxRelay{
		db: db,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		interval: interval,
		batch:    batch,
		logger:   logger.With("module", "outbox_relay"),
	}
}

// Run 阻塞运行直至 ctx 取消
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.writer.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.relayBatch(ctx); err != nil {
				r.logger.ErrorContext(ctx, "relay batch failed", "error", err)
			}
		}
	}
}

func (r *OutboxRelay) relayBatch(ctx context.Context) error {
	var messages []OutboxMessage
	if err := r.db.WithContext(ctx).
		Where("status = ?", statusPending).
		Order("created_at ASC").
		Limit(r.batch).
		Find(&messages).Error; err != nil {
		return err
	}

	for _, message := range messages {
		err := r.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(message.EventType),
			Value: []byte(message.Payload),
		})
		if err != nil {
			r.logger.WarnContext(ctx, "kafka write failed", "event_id", message.EventID, "error", err)
			continue
		}
		if err := r.db.WithContext(ctx).Model(&OutboxMessage{}).
			Where("id = ?", message.ID).
			Updates(map[string]any{"status": statusSent, "updated_at": time.Now()}).Error; err != nil {
			return err
		}
	}
	return nil
}

// Cleanup 清理已投递的历史消息
func (r *OutboxRelay) Cleanup(ctx context.Context, before time.Time) error {
	return r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", statusSent, before).
		Delete(&OutboxMessage{}).Error
}
