package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"bakery/internal/models"
)

func TestKafkaPublisherSendsKeyedEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	order := &models.Order{
		ID:            primitive.NewObjectID(),
		OrderNumber:   "TB-1-1000",
		UserID:        primitive.NewObjectID(),
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
		TotalAmount:   120,
	}

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, order.ID.Hex(), string(key))
		assert.Equal(t, "bakery.orders", msg.Topic)

		raw, err := msg.Value.Encode()
		require.NoError(t, err)
		var evt Event
		require.NoError(t, json.Unmarshal(raw, &evt))
		assert.Equal(t, OrderCreated, evt.Type)
		assert.Equal(t, "TB-1-1000", evt.OrderNumber)
		return nil
	})

	pub := newKafkaPublisher(producer, "bakery.orders", zap.NewNop())
	require.NoError(t, pub.Publish(context.Background(), ForOrder(OrderCreated, order)))
	require.NoError(t, pub.Close())
}
