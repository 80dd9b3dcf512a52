// Package push bridges platform push events, delivered over MQTT, to the
// notification UI of connected pages. The adapter is a thin pass-through:
// each push payload becomes one notification broadcast with the site's
// fixed icon and badge assets; there is no retry logic.
package push

import (
	"context"
	"encoding/json"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/beautycare/edgecache/internal/conf"
	"github.com/beautycare/edgecache/internal/errors"
	"github.com/beautycare/edgecache/internal/logger"
)

// TypePushNotification is the broadcast type pages render as a
// notification.
const TypePushNotification = "PUSH_NOTIFICATION"

// Fixed notification assets of the Beauty Care deployment.
const (
	notificationIcon  = "/ui/brand/logo.svg"
	notificationBadge = "/ui/icons/svg/info.svg"
)

// siteRoot is the click target when a push carries no URL.
const siteRoot = "/"

// defaultTitle labels notifications whose payload carries no title.
const defaultTitle = "Beauty Care"

// Broadcaster delivers a message to every connected page.
type Broadcaster interface {
	Broadcast(msg any)
}

// Notification is the broadcast sent for each push event. URL is the
// click target; pages open or focus a window there.
type Notification struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	URL   string `json:"url"`
}

// pushPayload is the JSON carried by a push event.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Adapter subscribes to the push topic and forwards payloads to pages.
type Adapter struct {
	settings  conf.PushSettings
	publisher Broadcaster
	log       logger.Logger
	client    paho.Client
}

// NewAdapter creates a push adapter. Start must be called to connect.
func NewAdapter(settings conf.PushSettings, publisher Broadcaster, log logger.Logger) *Adapter {
	return &Adapter{
		settings:  settings,
		publisher: publisher,
		log:       log,
	}
}

// Start connects to the broker and subscribes to the push topic.
func (a *Adapter) Start(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(a.settings.Broker)
	opts.SetClientID(a.settings.ClientID)
	opts.SetConnectTimeout(a.settings.ConnectTimeout.Std())
	opts.SetAutoReconnect(true)

	a.client = paho.NewClient(opts)

	token := a.client.Connect()
	if !token.WaitTimeout(a.settings.ConnectTimeout.Std()) {
		return errors.Newf("timeout connecting to push broker").
			Component("push").
			Category(errors.CategoryNetwork).
			Context("broker", a.settings.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.Newf("connecting to push broker: %w", err).
			Component("push").
			Category(errors.CategoryNetwork).
			Context("broker", a.settings.Broker).
			Build()
	}

	subToken := a.client.Subscribe(a.settings.Topic, 1, a.handleMessage)
	if !subToken.WaitTimeout(a.settings.ConnectTimeout.Std()) || subToken.Error() != nil {
		return errors.Newf("subscribing to push topic").
			Component("push").
			Category(errors.CategoryNetwork).
			Context("topic", a.settings.Topic).
			Build()
	}

	a.log.Info("push adapter started",
		logger.String("broker", a.settings.Broker),
		logger.String("topic", a.settings.Topic))
	return nil
}

// Stop disconnects from the broker.
func (a *Adapter) Stop() {
	if a.client != nil && a.client.IsConnected() {
		a.client.Disconnect(250)
	}
}

// handleMessage converts one push event into a notification broadcast.
func (a *Adapter) handleMessage(_ paho.Client, msg paho.Message) {
	var payload pushPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		a.log.Warn("discarding malformed push payload",
			logger.String("topic", msg.Topic()),
			logger.Error(err))
		return
	}

	url := payload.URL
	if url == "" {
		url = siteRoot
	}
	title := payload.Title
	if title == "" {
		title = defaultTitle
	}

	a.publisher.Broadcast(Notification{
		Type:  TypePushNotification,
		Title: title,
		Body:  payload.Body,
		Icon:  notificationIcon,
		Badge: notificationBadge,
		URL:   url,
	})
}
