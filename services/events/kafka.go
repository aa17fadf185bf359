// Package events publishes message events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/trezcool/masomo-admin/core/message"
)

const TypeMessageCreated = "message.created"

type (
	// MessageCreated is the payload of a "message.created" event.
	MessageCreated struct {
		Type         string    `json:"type"`
		MessageID    int       `json:"message_id"`
		CourseID     int       `json:"course_id"`
		ProfessorID  string    `json:"professor_id"`
		Subject      string    `json:"subject"`
		RecipientIDs []int     `json:"recipient_ids"`
		Date         time.Time `json:"date"`
	}

	writer interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// KafkaPublisher is a message.EventPublisher writing to one topic, keyed by course.
	KafkaPublisher struct {
		w writer
	}
)

var _ message.EventPublisher = (*KafkaPublisher)(nil)

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
	}
}

func NewMessageCreated(msg message.Message) MessageCreated {
	return MessageCreated{
		Type:         TypeMessageCreated,
		MessageID:    msg.ID,
		CourseID:     msg.CourseID,
		ProfessorID:  msg.Professor.ID,
		Subject:      msg.Subject,
		RecipientIDs: msg.RecipientIDs(),
		Date:         msg.Date,
	}
}

func (p *KafkaPublisher) PublishCreated(ctx context.Context, msg message.Message) error {
	value, err := json.Marshal(NewMessageCreated(msg))
	if err != nil {
		return errors.Wrap(err, "encoding event")
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.Itoa(msg.CourseID)),
		Value: value,
	})
	return errors.Wrap(err, "writing event")
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
