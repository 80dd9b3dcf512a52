package push

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautycare/edgecache/internal/conf"
	"github.com/beautycare/edgecache/internal/logger"
)

type mockBroadcaster struct {
	mu   sync.Mutex
	msgs []any
}

func (b *mockBroadcaster) Broadcast(msg any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func (b *mockBroadcaster) messages() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// fakeMessage implements the paho message interface for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestAdapter() (*Adapter, *mockBroadcaster) {
	broadcaster := &mockBroadcaster{}
	adapter := NewAdapter(conf.PushSettings{
		Topic: "beautycare/push",
	}, broadcaster, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	return adapter, broadcaster
}

func TestHandleMessage_BroadcastsNotification(t *testing.T) {
	t.Parallel()

	adapter, broadcaster := newTestAdapter()
	adapter.handleMessage(nil, &fakeMessage{
		topic:   "beautycare/push",
		payload: []byte(`{"title":"Report ready","body":"Your skin report is ready","url":"/data/reports/user_7_summary.html"}`),
	})

	msgs := broadcaster.messages()
	require.Len(t, msgs, 1)
	n, ok := msgs[0].(Notification)
	require.True(t, ok)
	assert.Equal(t, TypePushNotification, n.Type)
	assert.Equal(t, "Report ready", n.Title)
	assert.Equal(t, "Your skin report is ready", n.Body)
	assert.Equal(t, "/ui/brand/logo.svg", n.Icon)
	assert.Equal(t, "/ui/icons/svg/info.svg", n.Badge)
	assert.Equal(t, "/data/reports/user_7_summary.html", n.URL)
}

func TestHandleMessage_MissingURLDefaultsToRoot(t *testing.T) {
	t.Parallel()

	adapter, broadcaster := newTestAdapter()
	adapter.handleMessage(nil, &fakeMessage{
		topic:   "beautycare/push",
		payload: []byte(`{"title":"Hello","body":"World"}`),
	})

	msgs := broadcaster.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "/", msgs[0].(Notification).URL)
}

func TestHandleMessage_MissingTitleDefaultsToSiteName(t *testing.T) {
	t.Parallel()

	adapter, broadcaster := newTestAdapter()
	adapter.handleMessage(nil, &fakeMessage{
		topic:   "beautycare/push",
		payload: []byte(`{"body":"Your skin report is ready"}`),
	})

	msgs := broadcaster.messages()
	require.Len(t, msgs, 1)
	n := msgs[0].(Notification)
	assert.Equal(t, "Beauty Care", n.Title)
	assert.Equal(t, "Your skin report is ready", n.Body)
}

func TestHandleMessage_MalformedPayloadDropped(t *testing.T) {
	t.Parallel()

	adapter, broadcaster := newTestAdapter()
	adapter.handleMessage(nil, &fakeMessage{
		topic:   "beautycare/push",
		payload: []byte(`not json`),
	})

	assert.Empty(t, broadcaster.messages())
}

func TestStop_WithoutStartIsSafe(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter()
	adapter.Stop()
}
