// Package messaging 账本事件的 Outbox 发布与 Kafka 中继
package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/optionstrading/internal/account/domain"
)

// OutboxMessage 事件发件箱。事件先落库，由中继异步投递，
// 保证账本变更与事件发布不会只成功一半。
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(36);primary_key"`
	EventID   string    `gorm:"type:varchar(36);index"`
	EventType string    `gorm:"type:varchar(100);index"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (OutboxMessage) TableName() string {
	return "ledger_outbox_messages"
}

const (
	statusPending = "pending"
	statusSent    = "sent"
)

// NewOutboxMessage 将领域事件序列化为发件箱行。
// 账本变更产生的事件由仓储在聚合落库事务内写入。
func NewOutboxMessage(eventType string, event any) (*OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &OutboxMessage{
		ID:        uuid.NewString(),
		EventID:   uuid.NewString(),
		EventType: eventType,
		Payload:   string(payload),
		Status:    statusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// OutboxEventPublisher 以 Outbox 模式实现 EventPublisher。
// 仅承担与聚合状态无关的即时告警事件，单行插入无需配对事务。
type OutboxEventPublisher struct {
	db *gorm.DB
}

func NewOutboxEventPublisher(db *gorm.DB) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: db}
}

func (p *OutboxEventPublisher) PublishMarginCall(event domain.MarginCallEvent) error {
	message, err := NewOutboxMessage(domain.MarginCallEventType, event)
	if err != nil {
		return err
	}
	return p.db.Create(message).Error
}
