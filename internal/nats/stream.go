package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/operator-console/internal/model"
	"github.com/capitalize-ai/operator-console/internal/realtime"
)

const (
	// StreamName is the name of the operator events stream.
	StreamName = "CONSOLE_EVENTS"

	// SubjectPrefix is the prefix for all operator event subjects.
	SubjectPrefix = "console.events"
)

// EventSubject returns the subject carrying an operator's events.
func EventSubject(operatorID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, subjectToken(operatorID))
}

// subjectToken makes an id safe to use as a single subject token.
func subjectToken(id string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the events stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Live events delivered to operator consoles",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishFrame publishes an event frame to an operator's subject.
func (m *StreamManager) PublishFrame(ctx context.Context, operatorID string, frame model.Frame) (uint64, error) {
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal frame: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, EventSubject(operatorID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish frame: %w", err)
	}
	return ack.Sequence, nil
}

// Subscribe opens an ordered consumer on the operator's subject, delivering
// only events published from now on.
func (m *StreamManager) Subscribe(ctx context.Context, operatorID string) (*Feed, error) {
	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{EventSubject(operatorID)},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	iter, err := consumer.Messages()
	if err != nil {
		return nil, fmt.Errorf("failed to consume events: %w", err)
	}
	return &Feed{iter: iter}, nil
}

// Feed is a realtime.Transport reading frames from JetStream.
type Feed struct {
	iter jetstream.MessagesContext
}

var _ realtime.Transport = (*Feed)(nil)

// Receive returns the next frame.
func (f *Feed) Receive() ([]byte, error) {
	msg, err := f.iter.Next()
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgIteratorClosed) {
			return nil, realtime.ErrClosed
		}
		return nil, err
	}
	return msg.Data(), nil
}

// Close stops the consumer.
func (f *Feed) Close() error {
	f.iter.Stop()
	return nil
}
