package mq

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/taskhub/apiserver/config"
)

const natsMsgIDHeader = "Nats-Msg-Id"

// NATSClient publishes and consumes over core NATS subjects. Core NATS has
// no redelivery, so a handler error drops the message.
type NATSClient struct {
	conn       *nats.Conn
	queueGroup string
}

// NewNATSClient connects to the server named in cfg.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url is required")
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("taskhub"))
	if err != nil {
		return nil, err
	}

	return &NATSClient{conn: nc, queueGroup: cfg.QueueGroup}, nil
}

// Publish sends data on the subject named by channel.
func (n *NATSClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("nats channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	msg := nats.NewMsg(channel)
	msg.Data = data
	msg.Header.Set(natsMsgIDHeader, messageID)
	for key, value := range attrs {
		msg.Header.Set(key, value)
	}

	if err := n.conn.PublishMsg(msg); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe joins the configured queue group on channel and handles
// messages until ctx is done.
func (n *NATSClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("nats channel is required")
	}

	msgs := make(chan *nats.Msg, 64)
	sub, err := n.conn.ChanQueueSubscribe(channel, n.queueGroup, msgs)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			_ = handler(ctx, natsMessage(msg))
		}
	}
}

// Close drains in-flight messages and closes the connection.
func (n *NATSClient) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

func natsMessage(msg *nats.Msg) Message {
	message := Message{Data: msg.Data}
	if len(msg.Header) == 0 {
		return message
	}
	message.ID = msg.Header.Get(natsMsgIDHeader)
	message.Attributes = make(map[string]string, len(msg.Header))
	for key := range msg.Header {
		if key == natsMsgIDHeader {
			continue
		}
		message.Attributes[key] = msg.Header.Get(key)
	}
	return message
}
