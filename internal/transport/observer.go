package transport

// State is the connection state of an uplink.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ModelList is the server's model inventory.
type ModelList struct {
	Supported []string `json:"supported"`
	Installed []string `json:"installed"`
	Current   string   `json:"current"`
	Default   string   `json:"default"`
}

// ModelInfo describes where the current model runs.
type ModelInfo struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ComputeType string `json:"compute_type"`
}

// Observer receives inbound messages and connection state changes. Methods
// are called from the transport's goroutines and must not block.
type Observer interface {
	OnModels(models ModelList)
	OnPartial(text string)
	OnFinal(text string)
	OnStatus(status string)
	OnModelInfo(info ModelInfo)
	OnDebug(status string)
	OnError(message string)
	OnConnectionState(state State)
}

// NopObserver ignores everything. Embed it to implement only some methods.
type NopObserver struct{}

func (NopObserver) OnModels(ModelList)      {}
func (NopObserver) OnPartial(string)        {}
func (NopObserver) OnFinal(string)          {}
func (NopObserver) OnStatus(string)         {}
func (NopObserver) OnModelInfo(ModelInfo)   {}
func (NopObserver) OnDebug(string)          {}
func (NopObserver) OnError(string)          {}
func (NopObserver) OnConnectionState(State) {}
