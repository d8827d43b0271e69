package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"fluently-server/pkg/analysis"
	"fluently-server/pkg/metrics"
)

// Config holds AMQP client configuration.
type Config struct {
	URL       string
	QueueName string
}

// FeedbackEvent is the message published for each analyzed segment.
type FeedbackEvent struct {
	EventType string                      `json:"event_type"`
	SessionID string                      `json:"session_id"`
	UserID    string                      `json:"user_id"`
	Timestamp time.Time                   `json:"timestamp"`
	Feedback  []analysis.RealTimeFeedback `json:"feedback"`
}

// SessionEndedEvent is the message published when a session finishes.
type SessionEndedEvent struct {
	EventType      string                     `json:"event_type"`
	SessionID      string                     `json:"session_id"`
	UserID         string                     `json:"user_id"`
	Timestamp      time.Time                  `json:"timestamp"`
	FinalAnalytics *analysis.SessionAnalytics `json:"final_analytics"`
}

// Client publishes analysis events to an AMQP queue. An unconfigured client
// (empty URL or queue) is a silent no-op so the engine runs without a broker.
type Client struct {
	logger    *logrus.Logger
	config    Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewClient creates an AMQP client. Call Connect before publishing.
func NewClient(logger *logrus.Logger, config Config) *Client {
	return &Client{
		logger:   logger,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Enabled reports whether the client has a broker configured.
func (c *Client) Enabled() bool {
	return c.config.URL != "" && c.config.QueueName != ""
}

// Connect dials the broker and declares the durable event queue.
func (c *Client) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}
	if !c.Enabled() {
		c.logger.Warn("AMQP URL or queue name not set, event publishing disabled")
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	type dialResult struct {
		conn *amqp.Connection
		err  error
	}
	dialChan := make(chan dialResult, 1)
	go func() {
		conn, err := amqp.Dial(c.config.URL)
		dialChan <- dialResult{conn, err}
	}()

	var conn *amqp.Connection
	select {
	case result := <-dialChan:
		if result.err != nil {
			metrics.AMQPConnectionError()
			return fmt.Errorf("failed to connect to AMQP server: %w", result.err)
		}
		conn = result.conn
	case <-time.After(5 * time.Second):
		metrics.AMQPConnectionError()
		return fmt.Errorf("connection to AMQP server timed out after 5 seconds")
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		metrics.AMQPConnectionError()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if _, err := channel.QueueDeclare(
		c.config.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		metrics.AMQPConnectionError()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	c.stopChan = make(chan struct{})

	c.logger.WithFields(logrus.Fields{
		"url":   c.config.URL,
		"queue": c.config.QueueName,
	}).Info("Connected to AMQP server")

	go c.monitorConnection()

	return nil
}

// monitorConnection watches for a dropped connection and retries with a
// fixed backoff until Disconnect is called.
func (c *Client) monitorConnection() {
	closeChan := make(chan *amqp.Error, 1)
	c.connMutex.RLock()
	c.conn.NotifyClose(closeChan)
	c.connMutex.RUnlock()

	select {
	case <-c.stopChan:
		return
	case err := <-closeChan:
		if err != nil {
			c.logger.WithError(err).Warn("AMQP connection closed unexpectedly")
			metrics.AMQPConnectionError()
		}
	}

	c.connMutex.Lock()
	c.connected = false
	c.connMutex.Unlock()

	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(5 * time.Second):
		}

		if err := c.Connect(); err == nil {
			return
		}
		c.logger.Warn("AMQP reconnection failed, retrying")
	}
}

// Disconnect closes the AMQP connection.
func (c *Client) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.connected {
		return
	}

	close(c.stopChan)
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.connected = false
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status.
func (c *Client) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// PublishFeedbackEvent mirrors one round of feedback onto the queue.
func (c *Client) PublishFeedbackEvent(sessionID, userID string, feedback []analysis.RealTimeFeedback) error {
	return c.publish("realtime_feedback", FeedbackEvent{
		EventType: "realtime_feedback",
		SessionID: sessionID,
		UserID:    userID,
		Timestamp: time.Now(),
		Feedback:  feedback,
	})
}

// PublishSessionEnded mirrors the final analytics snapshot onto the queue.
func (c *Client) PublishSessionEnded(sessionID, userID string, final *analysis.SessionAnalytics) error {
	return c.publish("session_ended", SessionEndedEvent{
		EventType:      "session_ended",
		SessionID:      sessionID,
		UserID:         userID,
		Timestamp:      time.Now(),
		FinalAnalytics: final,
	})
}

func (c *Client) publish(eventType string, event interface{}) error {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	if !c.connected {
		if !c.Enabled() {
			return nil
		}
		return fmt.Errorf("AMQP client is not connected")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	if err := c.channel.Publish(
		"",                 // default exchange
		c.config.QueueName, // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	metrics.AMQPPublished(eventType)
	c.logger.WithFields(logrus.Fields{
		"event_type": eventType,
		"queue":      c.config.QueueName,
	}).Debug("Published analysis event")

	return nil
}
