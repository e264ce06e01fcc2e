package watcher

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventDashboardUpdated EventType = "dashboard_updated"
	EventSessionChanged   EventType = "session_changed"
	EventTxStatus         EventType = "tx_status"
)

// Event represents a dashboard event. Data is a models.Dashboard, a
// session.Snapshot or an actions.Result depending on Type.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
