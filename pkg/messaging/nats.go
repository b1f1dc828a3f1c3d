// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"
)

// NATSClient NATS JetStream客户端
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	natsURL   string
	log       *logrus.Entry
	consumers map[string]jetstream.ConsumeContext
	mu        sync.Mutex
}

// MessageHandler 通用消息处理函数类型
type MessageHandler func(data []byte) error

// NewNATSClient 创建新的NATS客户端
func NewNATSClient(natsURL string, log *logrus.Entry) (*NATSClient, error) {
	log = log.WithField("component", "nats")

	nc, err := nats.Connect(natsURL,
		nats.Name("docradar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // 无限重连
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS连接断开")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS重新连接成功")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	return &NATSClient{
		conn:      nc,
		jetStream: js,
		natsURL:   natsURL,
		log:       log,
		consumers: make(map[string]jetstream.ConsumeContext),
	}, nil
}

// NotificationStreamConfig 通知流配置
func NotificationStreamConfig(name, subject string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        name,
		Subjects:    []string{subject},
		Description: "证件到期通知队列",
		Retention:   jetstream.WorkQueuePolicy,
		MaxMsgs:     100000,
		MaxBytes:    100 * 1024 * 1024,  // 100MB
		MaxAge:      7 * 24 * time.Hour, // 保留7天
		Duplicates:  10 * time.Minute,   // 同一提醒在窗口内只入队一次
	}
}

// EnsureStream 创建或更新Stream
func (c *NATSClient) EnsureStream(ctx context.Context, config jetstream.StreamConfig) error {
	if _, err := c.jetStream.CreateOrUpdateStream(ctx, config); err != nil {
		return fmt.Errorf("创建/更新Stream %s 失败: %w", config.Name, err)
	}
	c.log.WithField("stream", config.Name).Info("Stream 设置成功")
	return nil
}

// Publish 发布消息到指定主题
func (c *NATSClient) Publish(ctx context.Context, subject string, data interface{}, opts ...jetstream.PublishOpt) error {
	payload, err := encode(data)
	if err != nil {
		return err
	}

	if _, err := c.jetStream.Publish(ctx, subject, payload, opts...); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}

	c.log.WithFields(logrus.Fields{"subject": subject, "bytes": len(payload)}).Debug("发布消息")
	return nil
}

// Subscribe 订阅指定主题的消息，处理失败的消息会被 Nak 重投
func (c *NATSClient) Subscribe(ctx context.Context, streamName, consumerName, filterSubject string, handler MessageHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       consumerName,
		Description:   fmt.Sprintf("%s 消费者", consumerName),
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := c.jetStream.CreateOrUpdateConsumer(ctx, streamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("创建消费者 %s 失败: %w", consumerName, err)
	}

	log := c.log.WithField("consumer", consumerName)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg.Data()); err != nil {
			log.WithError(err).Warn("处理消息失败")
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("启动消费者 %s 失败: %w", consumerName, err)
	}

	c.mu.Lock()
	c.consumers[consumerName] = consumeCtx
	c.mu.Unlock()

	log.WithFields(logrus.Fields{"stream": streamName, "subject": filterSubject}).Info("已订阅")
	return nil
}

// Close 停止所有消费者并关闭连接
func (c *NATSClient) Close() error {
	c.mu.Lock()
	for name, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, name)
	}
	c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
			return fmt.Errorf("关闭NATS连接失败: %w", err)
		}
	}

	c.log.Info("NATS连接已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Check 健康检查
func (c *NATSClient) Check(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("NATS未连接: %s", c.natsURL)
	}
	return nil
}

func encode(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("序列化数据失败: %w", err)
		}
		return payload, nil
	}
}
