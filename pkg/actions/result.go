package actions

// Status is the outcome of a dispatched action.
type Status int

const (
	StatusFailed Status = iota
	StatusPending
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPending:
		return "pending"
	default:
		return "failed"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is what the notifier is told about an action.
type Result struct {
	Action  string `json:"action"`
	Status  Status `json:"status"`
	TxHash  string `json:"tx_hash,omitempty"`
	Link    string `json:"link,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Notifier receives every action result.
type Notifier interface {
	Notify(Result)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Result)

func (f NotifierFunc) Notify(r Result) { f(r) }
