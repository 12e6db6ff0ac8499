package event

import (
	"context"
	"encoding/json"
	"errors"
	"loan-simulator/internal/domain/workflow"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockConsumerChannel struct {
	mock.Mock
}

func (m *MockConsumerChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete, internal, noWait, args).Error(0)
}

func (m *MockConsumerChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	a := m.Called(name, durable, autoDelete, exclusive, noWait, args)
	return a.Get(0).(amqp.Queue), a.Error(1)
}

func (m *MockConsumerChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.Called(name, key, exchange, noWait, args).Error(0)
}

func (m *MockConsumerChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return m.Called(prefetchCount, prefetchSize, global).Error(0)
}

func (m *MockConsumerChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	a := m.Called(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
	ch, _ := a.Get(0).(chan amqp.Delivery)
	return ch, a.Error(1)
}

func (m *MockConsumerChannel) Cancel(consumer string, noWait bool) error {
	return m.Called(consumer, noWait).Error(0)
}

func (m *MockConsumerChannel) Close() error {
	return m.Called().Error(0)
}

// recordingAcknowledger captures how a delivery was settled.
type recordingAcknowledger struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	rejects int
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects++
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func delivery(t *testing.T, ack amqp.Acknowledger, e workflow.Event) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(e)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, RoutingKey: string(e.Type), Body: body}
}

func dueEvent() workflow.Event {
	due := time.Date(2026, time.April, 6, 0, 0, 0, 0, time.UTC)
	return workflow.Event{
		Type:             workflow.EventPaymentDue,
		SessionID:        "8d1f5c3e-1a2b-4c3d-9e8f-0a1b2c3d4e5f",
		HolderName:       "Ana",
		AccountNumber:    "1234567890",
		Period:           1,
		Amount:           decimal.RequireFromString("1733.27"),
		RemainingBalance: decimal.NewFromInt(50000),
		DueDate:          &due,
	}
}

func TestRender(t *testing.T) {
	t.Run("should render a payment reminder", func(t *testing.T) {
		n, err := Render(dueEvent())
		require.NoError(t, err)
		assert.Equal(t, "Payment reminder", n.Subject)
		assert.Equal(t, "Dear Ana, installment 1 of 1733.27 is due on 2026-04-06.", n.Body)
		assert.Equal(t, "1234567890", n.AccountNumber)
	})

	t.Run("should render a received payment", func(t *testing.T) {
		n, err := Render(paidEvent())
		require.NoError(t, err)
		assert.Equal(t, "Payment received", n.Subject)
		assert.Contains(t, n.Body, "Remaining balance: 48891.73")
	})

	t.Run("should refuse reminders without a due date", func(t *testing.T) {
		e := dueEvent()
		e.DueDate = nil
		_, err := Render(e)
		assert.Error(t, err)
	})
}

func TestNotificationHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("should send and ack known events", func(t *testing.T) {
		sender := &recordingSender{}
		ack := &recordingAcknowledger{}
		h := NewNotificationHandler(sender, discardLogger())

		h.HandleDelivery(ctx, delivery(t, ack, dueEvent()))

		require.Len(t, sender.sent, 1)
		assert.Equal(t, 1, ack.acks)
		assert.Zero(t, ack.nacks)
	})

	t.Run("should reject unknown routing keys", func(t *testing.T) {
		sender := &recordingSender{}
		ack := &recordingAcknowledger{}
		h := NewNotificationHandler(sender, discardLogger())

		h.HandleDelivery(ctx, amqp.Delivery{Acknowledger: ack, RoutingKey: "customer.created", Body: []byte(`{}`)})

		assert.Equal(t, 1, ack.rejects)
		assert.Empty(t, sender.sent)
	})

	t.Run("should nack malformed bodies", func(t *testing.T) {
		ack := &recordingAcknowledger{}
		h := NewNotificationHandler(&recordingSender{}, discardLogger())

		h.HandleDelivery(ctx, amqp.Delivery{Acknowledger: ack, RoutingKey: "installment.due", Body: []byte(`{not json`)})

		assert.Equal(t, 1, ack.nacks)
		assert.Zero(t, ack.acks)
	})

	t.Run("should nack when sending fails", func(t *testing.T) {
		ack := &recordingAcknowledger{}
		h := NewNotificationHandler(&recordingSender{err: errors.New("smtp down")}, discardLogger())

		h.HandleDelivery(ctx, delivery(t, ack, dueEvent()))

		assert.Equal(t, 1, ack.nacks)
		assert.Zero(t, ack.acks)
	})
}

func TestConsumer(t *testing.T) {
	t.Run("should declare, bind and deliver messages to the handler", func(t *testing.T) {
		ch := new(MockConsumerChannel)
		ch.On("ExchangeDeclare", "loan-simulator", amqp.ExchangeTopic, true, false, false, false, amqp.Table(nil)).Return(nil)
		ch.On("QueueDeclare", "notifications", true, false, false, false, amqp.Table(nil)).Return(amqp.Queue{Name: "notifications"}, nil)
		ch.On("QueueBind", "notifications", "loan.*", "loan-simulator", false, amqp.Table(nil)).Return(nil)
		ch.On("QueueBind", "notifications", "installment.*", "loan-simulator", false, amqp.Table(nil)).Return(nil)
		ch.On("Qos", 1, 0, false).Return(nil)
		deliveries := make(chan amqp.Delivery, 1)
		ch.On("Consume", "notifications", "tag", false, false, false, false, amqp.Table(nil)).Return(deliveries, nil)
		ch.On("Cancel", "tag", false).Return(nil)
		ch.On("Close").Return(nil)

		handled := make(chan amqp.Delivery, 1)
		c, err := NewConsumer(ch, "loan-simulator", "notifications", "tag", LifecycleRoutingKeys,
			func(_ context.Context, d amqp.Delivery) { handled <- d }, discardLogger())
		require.NoError(t, err)
		require.NoError(t, c.Start(context.Background()))

		deliveries <- amqp.Delivery{RoutingKey: "installment.due"}
		select {
		case d := <-handled:
			assert.Equal(t, "installment.due", d.RoutingKey)
		case <-time.After(2 * time.Second):
			t.Fatal("delivery was not handled")
		}

		c.Stop()
		ch.AssertExpectations(t)
	})

	t.Run("should close the channel when declaration fails", func(t *testing.T) {
		ch := new(MockConsumerChannel)
		ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(errors.New("access refused"))
		ch.On("Close").Return(nil)

		_, err := NewConsumer(ch, "loan-simulator", "notifications", "tag", LifecycleRoutingKeys, nil, discardLogger())

		assert.ErrorContains(t, err, "access refused")
		ch.AssertCalled(t, "Close")
	})
}
