package audit

import "time"

// Record is an immutable, append-only audit log entry.
//
// Invariants:
// - Records are never updated or deleted.
// - Before and After have been through redact.Map and carry no credential material.
// - ActorID 0 means anonymous or system; EntityID 0 means not applicable.
//
// Storage (Postgres): table audit_logs, see internal/db/migrations.
type Record struct {
	ID       int64  `json:"id"`
	ActorID  int64  `json:"actor_id"`
	Entity   string `json:"entity"`
	EntityID int64  `json:"entity_id"`
	Action   Action `json:"action"`

	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`

	CreatedAt time.Time `json:"created_at"`
}

type Action string

const (
	ActionCreate   Action = "CREATE"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionLogin    Action = "LOGIN"
	ActionLogout   Action = "LOGOUT"
	ActionRefresh  Action = "REFRESH"
	ActionViewList Action = "VIEW_LIST"
	ActionExport   Action = "EXPORT"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionRefresh, ActionViewList, ActionExport:
		return true
	}
	return false
}

// ListQuery filters the audit listing. CreatedTo is exclusive; zero bounds
// are open.
type ListQuery struct {
	Page        int
	Limit       int
	Q           string
	SortDir     string
	CreatedFrom time.Time
	CreatedTo   time.Time
}
