package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	event := NewOrderEvent(
		EventTypeOrderPaid,
		"order-123",
		"ORD-20250601-AB12CD-U001",
		"user-1",
		"processing",
		map[string]interface{}{
			"transaction_id": "tx-1",
		},
	)

	// Публикуем событие
	err := producer.PublishEvent(TopicOrderEvents, "order-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewOrderEvent(EventTypeOrderCancelled, "order-123", "ORD-1", "user-1", "cancelled", nil)

	// Публикуем событие
	err := producer.PublishEvent(TopicOrderEvents, "order-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishOrderEvent_RoutesByEventType(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// payment.* события уходят в отдельный topic, ключ — order_id.
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicPaymentEvents {
			t.Errorf("expected topic %s, got %s", TopicPaymentEvents, msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "order-123" {
			t.Errorf("expected key order-123, got %s", key)
		}
		return nil
	})

	event := NewOrderEvent(EventTypePaymentConfirmed, "order-123", "ORD-1", "user-1", "processing", nil)
	if err := producer.PublishOrderEvent(event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishOrderEvent_NilEvent(t *testing.T) {
	producer := &Producer{logger: log.WithField("component", "kafka-producer-test")}
	if err := producer.PublishOrderEvent(nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}

func TestTopicForEvent(t *testing.T) {
	if got := TopicForEvent("payment.confirmed"); got != TopicPaymentEvents {
		t.Errorf("expected %s, got %s", TopicPaymentEvents, got)
	}
	if got := TopicForEvent("order.created"); got != TopicOrderEvents {
		t.Errorf("expected %s, got %s", TopicOrderEvents, got)
	}
	if got := TopicForEvent(""); got != TopicOrderEvents {
		t.Errorf("expected fallback %s, got %s", TopicOrderEvents, got)
	}
}

func TestNewOrderEvent(t *testing.T) {
	metadata := map[string]interface{}{
		"transaction_id": "tx-9",
		"amount":         2300,
	}

	event := NewOrderEvent(EventTypeOrderCreated, "order-123", "ORD-1", "user-1", "pending", metadata)

	if event.EventType != EventTypeOrderCreated {
		t.Errorf("expected event type %s, got %s", EventTypeOrderCreated, event.EventType)
	}
	if event.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", event.OrderID)
	}
	if event.OrderNumber != "ORD-1" {
		t.Errorf("expected order number ORD-1, got %s", event.OrderNumber)
	}
	if event.Status != "pending" {
		t.Errorf("expected status pending, got %s", event.Status)
	}
	if event.Timestamp.IsZero() || event.Timestamp.After(time.Now().Add(time.Second)) {
		t.Errorf("unexpected timestamp %v", event.Timestamp)
	}
	if event.Metadata["transaction_id"] != "tx-9" {
		t.Errorf("expected metadata to be kept, got %v", event.Metadata)
	}
}
