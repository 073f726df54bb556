package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/LiveTrace/internal/broker/messages"
	"github.com/BearBump/LiveTrace/internal/models"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type channelMock struct {
	mock.Mock
}

func (m *channelMock) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *channelMock) Close() error {
	return m.Called().Error(0)
}

type PublisherSuite struct {
	suite.Suite
	ch *channelMock
	p  *Publisher
}

func (s *PublisherSuite) SetupTest() {
	s.ch = &channelMock{}
	s.p = newPublisherWithChannel(s.ch, DefaultExchange)
}

func (s *PublisherSuite) TestEnqueuePublishesNotificationCreated() {
	n := &models.Notification{
		ID:          "n1",
		RecipientID: "u1",
		Kind:        "temperature_breach",
		Title:       "Temperature out of range",
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.ch.On("PublishWithContext", DefaultExchange, RoutingNotificationCreated, mock.MatchedBy(func(msg amqp091.Publishing) bool {
		var got messages.NotificationCreated
		if err := json.Unmarshal(msg.Body, &got); err != nil {
			return false
		}
		return msg.ContentType == "application/json" &&
			msg.DeliveryMode == amqp091.Persistent &&
			got.NotificationID == "n1" &&
			got.RecipientID == "u1" &&
			got.Kind == "temperature_breach"
	})).Return(nil).Once()

	s.Require().NoError(s.p.Enqueue(context.Background(), n))
	s.ch.AssertExpectations(s.T())
}

func (s *PublisherSuite) TestPublishErrorWrapped() {
	want := errors.New("channel closed")
	s.ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything).Return(want).Once()

	err := s.p.Publish(context.Background(), "x.y", map[string]string{"a": "b"})
	s.Require().ErrorIs(err, want)
	s.Contains(err.Error(), "amqp publish x.y")
}

func (s *PublisherSuite) TestPingWithoutConnection() {
	s.Equal("rabbitmq", s.p.Name())
	s.Error(s.p.Ping(context.Background()))
}

func (s *PublisherSuite) TestClose() {
	s.ch.On("Close").Return(nil).Once()
	s.p.Close()
	s.ch.AssertExpectations(s.T())
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}
