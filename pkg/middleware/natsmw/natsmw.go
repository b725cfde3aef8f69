// Package natsmw is a NATS-backed middleware. It layers graph announcements
// on top of the in-process graph: node creation and destruction are
// published on a graph subject, and announcements arriving from other
// processes trigger the local notify guard conditions, so executors wake on
// remote graph changes exactly as they do on local ones.
//
// Validation, name resolution, and resource bookkeeping are delegated to the
// embedded inproc middleware; only the graph fan-out is networked.
package natsmw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	natsclient "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wavemesh/talaria/internal/nats"
	"github.com/wavemesh/talaria/pkg/middleware"
	"github.com/wavemesh/talaria/pkg/middleware/inproc"
)

// Config holds configuration for the NATS graph layer.
type Config struct {
	// Connection configures the underlying NATS connection.
	Connection *nats.ConnectionConfig

	// SubjectPrefix is the subject namespace for graph announcements.
	SubjectPrefix string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(url string) *Config {
	return &Config{
		Connection:    nats.DefaultConnectionConfig(url),
		SubjectPrefix: "talaria.graph",
	}
}

// announcement is the wire format of a graph change.
type announcement struct {
	Event     string `json:"event"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	FQN       string `json:"fqn"`
	Origin    string `json:"origin"`
}

// Middleware implements middleware.Middleware over a NATS connection.
type Middleware struct {
	*inproc.Middleware

	conn     *natsclient.Conn
	sub      *natsclient.Subscription
	originID string
	prefix   string
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New connects to NATS and starts listening for graph announcements from
// other processes. The logger may be nil.
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (*Middleware, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.SubjectPrefix == "" {
		return nil, errors.New("subject prefix cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(ctx, cfg.Connection, logger)
	if err != nil {
		return nil, err
	}

	m := &Middleware{
		Middleware: inproc.New(logger),
		conn:       conn,
		originID:   uuid.NewString(),
		prefix:     cfg.SubjectPrefix,
		logger:     logger,
		tracer:     otel.Tracer("talaria/natsmw"),
	}

	sub, err := conn.Subscribe(cfg.SubjectPrefix+".node.*", m.handleAnnouncement)
	if err != nil {
		if cerr := nats.Close(conn); cerr != nil {
			logger.Warn("failed to close connection after subscribe failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("failed to subscribe to graph announcements: %w", err)
	}
	m.sub = sub
	return m, nil
}

// NodeInit registers the node locally and announces it on the graph subject.
// A failed announcement is logged, not returned: the node exists regardless,
// and remote processes converge on the next announcement they do receive.
func (m *Middleware) NodeInit(rt middleware.Runtime, name, namespace string, opts middleware.NodeOptions) (middleware.NodeResource, middleware.Ret) {
	res, ret := m.Middleware.NodeInit(rt, name, namespace, opts)
	if ret != middleware.RetOK {
		return nil, ret
	}
	m.announce("up", res)
	return res, ret
}

// NodeFini removes the node locally and announces its departure.
func (m *Middleware) NodeFini(res middleware.NodeResource) middleware.Ret {
	ret := m.Middleware.NodeFini(res)
	if ret == middleware.RetOK {
		m.announce("down", res)
	}
	return ret
}

// Close stops listening for announcements and drains the connection.
func (m *Middleware) Close() error {
	if m.sub != nil {
		if err := m.sub.Unsubscribe(); err != nil {
			m.logger.Warn("failed to unsubscribe from graph announcements", zap.Error(err))
		}
		m.sub = nil
	}
	return nats.Close(m.conn)
}

func (m *Middleware) announce(event string, res middleware.NodeResource) {
	_, span := m.tracer.Start(context.Background(), "graph.announce",
		trace.WithAttributes(
			attribute.String("graph.event", event),
			attribute.String("graph.node", res.FullyQualifiedName()),
		))
	defer span.End()

	payload, err := json.Marshal(announcement{
		Event:     event,
		Name:      res.Name(),
		Namespace: res.Namespace(),
		FQN:       res.FullyQualifiedName(),
		Origin:    m.originID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		m.logger.Error("failed to marshal graph announcement", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.node.%s", m.prefix, event)
	if err := m.conn.Publish(subject, payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		m.logger.Warn("failed to publish graph announcement",
			zap.String("subject", subject),
			zap.Error(err))
	}
}

func (m *Middleware) handleAnnouncement(msg *natsclient.Msg) {
	var a announcement
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		m.logger.Warn("ignoring malformed graph announcement", zap.Error(err))
		return
	}
	if a.Origin == m.originID {
		// Local changes already triggered the guard conditions.
		return
	}
	m.logger.Debug("remote graph change",
		zap.String("event", a.Event),
		zap.String("node", a.FQN))
	m.NotifyGraphChange()
}

var _ middleware.Middleware = (*Middleware)(nil)
