package natsmw

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsclient "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/wavemesh/talaria/pkg/middleware"
	"github.com/wavemesh/talaria/pkg/middleware/inproc"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("nats://localhost:4222")

	require.NotNil(t, cfg.Connection)
	assert.Equal(t, "nats://localhost:4222", cfg.Connection.URL)
	assert.Equal(t, "talaria-graph", cfg.Connection.Name)
	assert.Equal(t, "talaria.graph", cfg.SubjectPrefix)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), nil, zap.NewNop())
	assert.Error(t, err)

	cfg := DefaultConfig("nats://localhost:4222")
	cfg.SubjectPrefix = ""
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

// newDetachedMiddleware builds a Middleware without a live connection, for
// exercising the announcement handling path in isolation.
func newDetachedMiddleware() *Middleware {
	return &Middleware{
		Middleware: inproc.New(zap.NewNop()),
		originID:   "origin-self",
		prefix:     "talaria.graph",
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("talaria/natsmw"),
	}
}

func TestRemoteAnnouncementTriggersGuards(t *testing.T) {
	m := newDetachedMiddleware()

	rt, _ := m.RuntimeInit()
	guard, ret := m.GuardInit(rt)
	require.Equal(t, middleware.RetOK, ret)

	payload, err := json.Marshal(announcement{
		Event:     "up",
		Name:      "remote",
		Namespace: "/far",
		FQN:       "/far/remote",
		Origin:    "origin-other",
	})
	require.NoError(t, err)

	m.handleAnnouncement(&natsclient.Msg{Data: payload})

	select {
	case <-guard.Signal():
	case <-time.After(time.Second):
		t.Fatal("remote announcement should trigger local guard conditions")
	}
}

func TestOwnAnnouncementIsIgnored(t *testing.T) {
	m := newDetachedMiddleware()

	rt, _ := m.RuntimeInit()
	guard, _ := m.GuardInit(rt)

	payload, err := json.Marshal(announcement{
		Event:  "up",
		Name:   "self",
		FQN:    "/self",
		Origin: "origin-self",
	})
	require.NoError(t, err)

	m.handleAnnouncement(&natsclient.Msg{Data: payload})

	select {
	case <-guard.Signal():
		t.Fatal("announcements from this process must not re-trigger guards")
	default:
	}
}

func TestMalformedAnnouncementIsIgnored(t *testing.T) {
	m := newDetachedMiddleware()

	rt, _ := m.RuntimeInit()
	guard, _ := m.GuardInit(rt)

	m.handleAnnouncement(&natsclient.Msg{Data: []byte("not json")})

	select {
	case <-guard.Signal():
		t.Fatal("malformed announcements must not trigger guards")
	default:
	}
}
