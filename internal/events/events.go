// Package events publishes analysis lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"codeguard/internal/model"
)

const (
	DefaultSubject    = "analysis.completed"
	ConnectTimeout    = 10 * time.Second
	ReconnectInterval = 5 * time.Second
	MaxReconnects     = 10
)

// Completed is the notification sent after an analysis has been scored.
type Completed struct {
	AnalysisID    string                 `json:"analysisId"`
	UserID        string                 `json:"userId,omitempty"`
	FileName      string                 `json:"fileName"`
	Language      string                 `json:"language"`
	FindingCount  int                    `json:"findingCount"`
	SecurityScore int                    `json:"securityScore"`
	AIUsed        bool                   `json:"aiUsed"`
	BySeverity    map[model.Severity]int `json:"bySeverity"`
	At            time.Time              `json:"at"`
}

type Publisher interface {
	PublishCompleted(ctx context.Context, e Completed) error
	Close() error
}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) PublishCompleted(context.Context, Completed) error { return nil }
func (Noop) Close() error                                      { return nil }

type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("codeguard"),
		nats.Timeout(ConnectTimeout),
		nats.MaxReconnects(MaxReconnects),
		nats.ReconnectWait(ReconnectInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("nats publisher initialized", zap.String("subject", subject))
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) PublishCompleted(ctx context.Context, e Completed) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("NATS connection not available")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish canceled: %w", err)
	}
	msg, err := Message(p.subject, e)
	if err != nil {
		return err
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debug("published analysis event",
		zap.String("analysis_id", e.AnalysisID),
		zap.String("subject", p.subject))
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
		}
		p.conn = nil
	}
	return nil
}

// Message encodes e as a JSON NATS message with routing headers.
func Message(subject string, e Completed) (*nats.Msg, error) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.BySeverity == nil {
		e.BySeverity = map[model.Severity]int{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("x-analysis-id", e.AnalysisID)
	msg.Header.Set("x-security-score", strconv.Itoa(e.SecurityScore))
	msg.Header.Set("x-finding-count", strconv.Itoa(e.FindingCount))
	if e.UserID != "" {
		msg.Header.Set("x-user-id", e.UserID)
	}
	return msg, nil
}
