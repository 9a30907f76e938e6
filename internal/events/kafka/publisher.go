package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/segyhp/loan-ledger/internal/events"
)

// Publisher writes ledger events to one topic, keyed by loan ID so that
// events of the same loan land on the same partition in commit order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, evs ...events.LedgerEvent) error {
	if len(evs) == 0 {
		return nil
	}

	msgs, err := toMessages(evs)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func toMessages(evs []events.LedgerEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(evs))
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.LoanID),
			Value: data,
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
			},
		})
	}
	return msgs, nil
}

var _ events.Publisher = (*Publisher)(nil)
