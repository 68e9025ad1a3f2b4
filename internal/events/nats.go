package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
)

const (
	StreamName    = "BIZDESK_EVENTS"
	SubjectPrefix = "bizdesk.events"
)

// Notice is the payload published for every committed mutation.
type Notice struct {
	Module      string    `json:"module"`
	Phase       string    `json:"phase"`
	WorkspaceID uint      `json:"workspaceId"`
	EntityID    uint      `json:"entityId"`
	Data        any       `json:"data,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func Subject(module, phase string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, module, phase)
}

// Publisher sends notices to external consumers.
type Publisher interface {
	Publish(ctx context.Context, n Notice) error
}

// NopPublisher is used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Notice) error { return nil }

// NATSPublisher publishes to a JetStream stream, falling back to core NATS
// when JetStream is unavailable on the server.
type NATSPublisher struct {
	conn *nats.Conn
	js   jetstream.JetStream
	log  *logger.Logger
}

func Connect(ctx context.Context, url string, log *logger.Logger) (*NATSPublisher, error) {
	log = log.Named("nats")
	nc, err := nats.Connect(url,
		nats.Name("bizdesk"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := &NATSPublisher{conn: nc, log: log}
	js, err := jetstream.New(nc)
	if err == nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{SubjectPrefix + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Description: "Committed bizdesk mutations",
		})
	}
	if err != nil {
		log.Warn("JetStream unavailable, using core NATS", zap.Error(err))
	} else {
		p.js = js
	}
	return p, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, n Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	subject := Subject(n.Module, n.Phase)
	if p.js != nil {
		_, err = p.js.Publish(ctx, subject, data)
		return err
	}
	return p.conn.Publish(subject, data)
}

func (p *NATSPublisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}
