package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"callreport-server/pkg/errors"
	"callreport-server/pkg/metrics"
	"callreport-server/pkg/report"
	"callreport-server/pkg/version"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const (
	connectTimeout = 5 * time.Second
	setupTimeout   = 3 * time.Second
	publishTimeout = 2 * time.Second

	// Reports are dropped by the broker if nobody consumes them within a day
	reportExpiration = "86400000"
)

// ReportMessage is the envelope published for every generated report
type ReportMessage struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Report    *report.Report `json:"report"`
}

// AMQPConfig holds AMQP client configuration
type AMQPConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Durable      bool
	AutoDelete   bool
}

// AMQPClient publishes finished reports to an AMQP queue
type AMQPClient struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a new AMQP client
func NewAMQPClient(logger *logrus.Logger, config AMQPConfig) *AMQPClient {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	config.Durable = true
	config.AutoDelete = false

	return &AMQPClient{
		logger:   logger,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

type dialResult[C io.Closer] struct {
	conn C
	err  error
}

// dialWithin runs dial in the background and returns its result, or ctx's
// error if ctx ends first. The result channel is unbuffered, so a connection
// that arrives after Connect gave up is closed instead of leaked.
func dialWithin[C io.Closer](ctx context.Context, dial func() (C, error)) (C, error) {
	results := make(chan dialResult[C])

	go func() {
		conn, err := dial()
		select {
		case results <- dialResult[C]{conn, err}:
		case <-ctx.Done():
			if err == nil {
				conn.Close()
			}
		}
	}()

	select {
	case result := <-results:
		return result.conn, result.err
	case <-ctx.Done():
		var zero C
		return zero, ctx.Err()
	}
}

// Connect establishes a connection to the AMQP server and declares the report queue
func (c *AMQPClient) Connect(ctx context.Context) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.URL == "" || c.config.QueueName == "" {
		c.logger.Warn("AMQP_URL or AMQP_QUEUE_NAME not set, report publishing will be disabled")
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := dialWithin(dialCtx, func() (*amqp.Connection, error) {
		return amqp.DialConfig(c.config.URL, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Properties: amqp.Table{
				"product": version.UserAgent(),
			},
		})
	})
	if err != nil {
		if dialCtx.Err() != nil {
			return fmt.Errorf("connection to AMQP server timed out after %s", connectTimeout)
		}
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := c.setupChannel(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	c.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	c.logger.WithFields(logrus.Fields{
		"url":   c.config.URL,
		"queue": c.config.QueueName,
	}).Info("Connected to AMQP server")

	go c.monitorConnection(conn, c.stopChan)

	return nil
}

// setupChannel opens a channel and declares the queue, bounded by setupTimeout
func (c *AMQPClient) setupChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	done := make(chan error, 1)
	var channel *amqp.Channel

	go func() {
		ch, err := conn.Channel()
		if err != nil {
			done <- fmt.Errorf("failed to open AMQP channel: %w", err)
			return
		}
		_, err = ch.QueueDeclare(
			c.config.QueueName,
			c.config.Durable,
			c.config.AutoDelete,
			false, // Exclusive
			false, // No-wait
			nil,
		)
		if err != nil {
			ch.Close()
			done <- fmt.Errorf("failed to declare AMQP queue: %w", err)
			return
		}
		channel = ch
		done <- nil
	}()

	select {
	case err := <-done:
		return channel, err
	case <-time.After(setupTimeout):
		return nil, fmt.Errorf("AMQP channel setup timed out after %s", setupTimeout)
	}
}

// monitorConnection marks the client disconnected when the broker closes the connection
func (c *AMQPClient) monitorConnection(conn *amqp.Connection, stop chan struct{}) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-stop:
		return
	case err := <-closed:
		c.connMutex.Lock()
		if c.conn == conn {
			c.connected = false
			c.channel = nil
			c.conn = nil
		}
		c.connMutex.Unlock()
		metrics.SetAMQPConnectionStatus(false)

		if err != nil {
			c.logger.WithError(err).Warn("AMQP connection closed by server")
		}
	}
}

// Disconnect closes the AMQP connection
func (c *AMQPClient) Disconnect() {
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

	c.channel = nil
	c.conn = nil
	c.connected = false
	metrics.SetAMQPConnectionStatus(false)
	c.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// PublishReport publishes a report to the configured queue as a persistent JSON message
func (c *AMQPClient) PublishReport(ctx context.Context, rep *report.Report) error {
	if rep == nil {
		return errors.NewInvalidInput("report is nil")
	}
	if !c.IsConnected() {
		metrics.RecordAMQPPublish(c.config.QueueName, "not_connected")
		return errors.NewPublishFailed(c.config.QueueName, fmt.Errorf("not connected to AMQP server"))
	}

	body, err := json.Marshal(ReportMessage{
		Type:      "activity_report",
		Timestamp: time.Now().UTC(),
		Report:    rep,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}

	messageID := rep.ID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		c.connMutex.RLock()
		defer c.connMutex.RUnlock()

		if !c.connected || c.channel == nil {
			result <- fmt.Errorf("lost AMQP connection before publishing")
			return
		}

		result <- c.channel.Publish(
			c.config.ExchangeName,
			c.config.RoutingKey,
			false, // Mandatory
			false, // Immediate
			amqp.Publishing{
				ContentType:  "application/json",
				MessageId:    messageID,
				Type:         "activity_report",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				Expiration:   reportExpiration,
			},
		)
	}()

	select {
	case err := <-result:
		if err != nil {
			metrics.RecordAMQPPublish(c.config.QueueName, "error")
			return errors.NewPublishFailed(c.config.QueueName, err)
		}
	case <-ctx.Done():
		metrics.RecordAMQPPublish(c.config.QueueName, "timeout")
		return errors.NewPublishFailed(c.config.QueueName, ctx.Err())
	}

	metrics.RecordAMQPPublish(c.config.QueueName, "success")
	c.logger.WithFields(logrus.Fields{
		"report_id":  rep.ID,
		"message_id": messageID,
		"queue":      c.config.QueueName,
	}).Debug("Published report to AMQP")
	return nil
}
