// Package events publishes security alerts onto a message bus so
// operators can react to sandbox violations out of band. The bus is
// optional: when no broker is configured the noop publisher keeps the
// call sites unconditional.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vinayprograms/agentkit/logging"
)

// Alert is the payload published for each sandbox violation.
type Alert struct {
	Site      string    `json:"site"`
	Action    string    `json:"action"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers violation alerts.
type Publisher interface {
	PublishViolation(alert Alert) error
	Close()
}

// NATSPublisher delivers alerts to a NATS subject per site.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *logging.Logger
}

// NewNATSPublisher connects to the broker at url. Alerts go to
// "<subject>.<site_id>".
func NewNATSPublisher(url, subject string, logger *logging.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logging.New().WithComponent("events")
	}
	conn, err := nats.Connect(url,
		nats.Name("companion"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	logger.Info("alert bus connected", map[string]interface{}{
		"url":     url,
		"subject": subject,
	})
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishViolation sends one alert. Delivery is best effort; a
// publish failure is returned for logging but never blocks the run.
func (p *NATSPublisher) PublishViolation(alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return p.conn.Publish(p.subject+"."+alert.Site, data)
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}

// NoopPublisher discards alerts. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishViolation(Alert) error { return nil }
func (NoopPublisher) Close()                       {}
