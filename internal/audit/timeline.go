package audit

import (
	"encoding/json"
	"time"
)

// TimelineFilter narrows the audit trail. From and To are inclusive calendar days.
type TimelineFilter struct {
	From     time.Time
	To       time.Time
	ActorID  int64
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// Entry is one recorded mutation.
type Entry struct {
	ID         int64           `json:"id"`
	ActorID    int64           `json:"actorId,omitempty"`
	Action     string          `json:"action"`
	Entity     string          `json:"entity"`
	EntityID   string          `json:"entityId"`
	Meta       json.RawMessage `json:"meta,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Paging describes one window over the timeline.
type Paging struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps one timeline window.
type Result struct {
	Rows   []Entry `json:"data"`
	Paging Paging  `json:"paging"`
}
