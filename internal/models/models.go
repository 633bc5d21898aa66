package models

import "time"

const (
	// DefaultTitle is used when a push payload is unreadable or has no title.
	DefaultTitle = "Notification"
	// DefaultURL is the navigation target when a push names none.
	DefaultURL = "/"

	RelayTypePushEvent  = "PUSH_EVENT"
	RelayTypeFocus      = "FOCUS"
	RelayTypeVisibility = "VISIBILITY"
	RelayTypeNavigate   = "NAVIGATE"
)

// PushMessage is a decoded push payload. It only lives while a push is handled.
type PushMessage struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	URL   string                 `json:"url"`
	Data  map[string]interface{} `json:"data"`
}

// RelayMessage is what the agent posts to open page clients.
type RelayMessage struct {
	Type    string       `json:"type"`
	Payload *PushMessage `json:"payload,omitempty"`
}

// ClientUpdate is sent by page clients to the agent.
type ClientUpdate struct {
	Type    string `json:"type"`
	Visible bool   `json:"visible,omitempty"`
	URL     string `json:"url,omitempty"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is the part of a subscription mirrored to the backend.
type PushSubscription struct {
	Endpoint  string           `json:"endpoint"`
	Keys      SubscriptionKeys `json:"keys"`
	UserAgent string           `json:"userAgent,omitempty"`
}

// SystemNotification is an OS-level notification held in the tray until it
// is clicked or expires.
type SystemNotification struct {
	ID      string                 `json:"id"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Icon    string                 `json:"icon,omitempty"`
	Badge   string                 `json:"badge,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	ShownAt time.Time              `json:"shown_at"`
}

// TargetURL returns the url stored with the notification, or DefaultURL.
func (n SystemNotification) TargetURL() string {
	if n.Data != nil {
		if u, ok := n.Data["url"].(string); ok && u != "" {
			return u
		}
	}
	return DefaultURL
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
}
