package queue

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funddocs/funds-tracker/constants"
	"github.com/funddocs/funds-tracker/internal/lifecycle"
	"github.com/funddocs/funds-tracker/internal/pipeline"
	"github.com/funddocs/funds-tracker/internal/store"
)

type fakeAcknowledger struct {
	acked  []uint64
	nacked []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, _ bool) error {
	f.nacked = append(f.nacked, tag)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, _ bool) error {
	f.nacked = append(f.nacked, tag)
	return nil
}

type completedProcessor struct{}

func (completedProcessor) Process(context.Context, pipeline.Job) pipeline.Outcome {
	return pipeline.Completed()
}

func newRabbitConsumer() *RabbitConsumer {
	registry := pipeline.NewRegistry()
	registry.Register(constants.DocTypeICMemo, completedProcessor{})
	controller := lifecycle.NewController(store.NewMemoryStore(), nil)
	return &RabbitConsumer{Handler: NewConsumer(nil, registry, controller)}
}

func jobBody(t *testing.T, fundID string) []byte {
	t.Helper()
	body, err := json.Marshal(DocumentJob{
		FundID:       fundID,
		DocumentType: "ic_memo",
		InputBucket:  "input",
		ObjectKey:    "uploads/" + fundID + "/doc.pdf",
	})
	require.NoError(t, err)
	return body
}

func delivery(ack amqp.Acknowledger, tag uint64, messageID string, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, MessageId: messageID, Body: body}
}

func TestDispatch_DuplicateMessageIDsAllSettled(t *testing.T) {
	rc := newRabbitConsumer()
	ack := &fakeAcknowledger{}

	// Redelivery can put two copies of one message in the same batch.
	batch := []amqp.Delivery{
		delivery(ack, 1, "m1", jobBody(t, "f1")),
		delivery(ack, 2, "m1", jobBody(t, "f1")),
		delivery(ack, 3, "m2", jobBody(t, "f2")),
	}

	rc.dispatch(context.Background(), batch)

	assert.ElementsMatch(t, []uint64{1, 2, 3}, ack.acked)
	assert.Empty(t, ack.nacked)
}

func TestDispatch_DuplicateFailuresAllNacked(t *testing.T) {
	rc := newRabbitConsumer()
	ack := &fakeAcknowledger{}

	bad := []byte("{not json")
	batch := []amqp.Delivery{
		delivery(ack, 1, "m1", bad),
		delivery(ack, 2, "m1", bad),
		delivery(ack, 3, "m2", jobBody(t, "f2")),
	}

	rc.dispatch(context.Background(), batch)

	assert.ElementsMatch(t, []uint64{1, 2}, ack.nacked)
	assert.Equal(t, []uint64{3}, ack.acked)
}

func TestMessageID_FallsBackToDeliveryTag(t *testing.T) {
	assert.Equal(t, "m1", messageID(amqp.Delivery{MessageId: "m1", DeliveryTag: 7}))
	assert.Equal(t, "7", messageID(amqp.Delivery{DeliveryTag: 7}))
}
