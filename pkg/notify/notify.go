// Package notify 把到期提醒翻译成通知队列条目
package notify

import (
	"context"
	"fmt"

	"github.com/dewei/DocRadar/pkg/model"
)

// Queue 通知投递方，返回 nil 表示已接收
type Queue interface {
	Enqueue(ctx context.Context, entry *model.NotificationQueueEntry) error
}

// QueueFunc 函数适配为 Queue
type QueueFunc func(ctx context.Context, entry *model.NotificationQueueEntry) error

func (f QueueFunc) Enqueue(ctx context.Context, entry *model.NotificationQueueEntry) error {
	return f(ctx, entry)
}

// Tone 通知语气
type Tone string

const (
	ToneInformational Tone = "informational"
	ToneReminder      Tone = "reminder"
	ToneUrgent        Tone = "urgent"
	ToneOverdue       Tone = "overdue"
)

// PriorityFor 档位对应的通知优先级
func PriorityFor(t model.AlertType) (model.Priority, error) {
	switch t {
	case model.AlertType30Day:
		return model.PriorityLow, nil
	case model.AlertType7Day:
		return model.PriorityNormal, nil
	case model.AlertType1Day:
		return model.PriorityHigh, nil
	case model.AlertTypeExpired:
		return model.PriorityCritical, nil
	}
	return "", fmt.Errorf("%w: %q", model.ErrUnknownAlertType, string(t))
}

// ToneFor 档位对应的通知语气
func ToneFor(t model.AlertType) (Tone, error) {
	switch t {
	case model.AlertType30Day:
		return ToneInformational, nil
	case model.AlertType7Day:
		return ToneReminder, nil
	case model.AlertType1Day:
		return ToneUrgent, nil
	case model.AlertTypeExpired:
		return ToneOverdue, nil
	}
	return "", fmt.Errorf("%w: %q", model.ErrUnknownAlertType, string(t))
}

// Content 生成通知标题和正文
func Content(t model.AlertType, docTitle, bikeName, expiry string) (title, body string, err error) {
	tone, err := ToneFor(t)
	if err != nil {
		return "", "", err
	}

	switch tone {
	case ToneInformational:
		title = fmt.Sprintf("%s 将在30天后到期", docTitle)
		body = fmt.Sprintf("%s 的%s将于 %s 到期，可以提前安排续期。", bikeName, docTitle, expiry)
	case ToneReminder:
		title = fmt.Sprintf("提醒：%s 一周后到期", docTitle)
		body = fmt.Sprintf("%s 的%s将于 %s 到期，请尽快办理续期。", bikeName, docTitle, expiry)
	case ToneUrgent:
		title = fmt.Sprintf("紧急：%s 明天到期", docTitle)
		body = fmt.Sprintf("%s 的%s明天（%s）到期，请立即处理，避免无证上路。", bikeName, docTitle, expiry)
	case ToneOverdue:
		title = fmt.Sprintf("%s 已到期", docTitle)
		body = fmt.Sprintf("%s 的%s已于 %s 到期，续期前请勿骑行。", bikeName, docTitle, expiry)
	}
	return title, body, nil
}

// Build 组装一条证件到期通知
func Build(alert *model.AlertInstance, doc *model.Document, bikeName string) (*model.NotificationQueueEntry, error) {
	if doc.ExpiryDate == nil {
		return nil, fmt.Errorf("证件 %s: %w", doc.ID, model.ErrNoExpiry)
	}

	priority, err := PriorityFor(alert.AlertType)
	if err != nil {
		return nil, err
	}
	title, body, err := Content(alert.AlertType, doc.Title, bikeName, doc.ExpiryDate.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	return &model.NotificationQueueEntry{
		UserID:   alert.UserID,
		Title:    title,
		Body:     body,
		Category: model.CategoryDocument,
		Priority: priority,
		Payload: model.NotificationPayload{
			AlertID:    alert.ID,
			DocumentID: doc.ID,
			BikeID:     doc.BikeID,
			AlertType:  alert.AlertType,
		},
		Status: model.QueueStatusPending,
	}, nil
}
