package protocol

// Action discriminates the wire message union.
type Action string

const (
	ActionJoin        Action = "join"
	ActionJoined      Action = "joined"
	ActionLeft        Action = "left"
	ActionPlaying     Action = "playing"
	ActionBuffering   Action = "buffering"
	ActionSkipped     Action = "skipped"
	ActionDeclare     Action = "declare"
	ActionInform      Action = "inform"
	ActionSays        Action = "says"
	ActionNext        Action = "next"
	ActionLeader      Action = "leader"
	ActionNextHolder  Action = "nextHolder"
	ActionRequestSync Action = "request-sync"
	ActionSync        Action = "sync"
)

// Actions lists every known action, in no particular order. Handler maps are
// checked against it for exhaustiveness.
var Actions = []Action{
	ActionJoin,
	ActionJoined,
	ActionLeft,
	ActionPlaying,
	ActionBuffering,
	ActionSkipped,
	ActionDeclare,
	ActionInform,
	ActionSays,
	ActionNext,
	ActionLeader,
	ActionNextHolder,
	ActionRequestSync,
	ActionSync,
}

// UpNextHolder is catalog metadata for the queued next item. It is produced
// once by the leader and carried verbatim through nextHolder messages so every
// peer lands on the same content.
type UpNextHolder struct {
	MediaId     string `json:"mediaId"`
	Name        string `json:"name"`
	Overview    string `json:"overview"`
	Backdrop    string `json:"backdrop"`
	Logo        string `json:"logo"`
	EpisodeName string `json:"episodeName,omitempty"`
}

// Message is the wire envelope. Data carries a bool, number or string whose
// meaning depends on Action; use the typed accessors. Self is computed at
// receipt by comparing UserName against the local identity, never serialized.
type Message struct {
	Action    Action        `json:"action"`
	Data      any           `json:"data,omitempty"`
	UpNext    *UpNextHolder `json:"upNext,omitempty"`
	UserName  string        `json:"userName"`
	WatchRoom string        `json:"watchRoom"`

	Self bool `json:"-"`
}

func (m Message) Bool() (bool, bool) {
	v, ok := m.Data.(bool)
	return v, ok
}

// Number returns the data field as a float64. encoding/json decodes every
// JSON number into float64, so a round-tripped message always hits this path.
func (m Message) Number() (float64, bool) {
	switch v := m.Data.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (m Message) Str() (string, bool) {
	v, ok := m.Data.(string)
	return v, ok
}
