package domain

// Status is the workflow state of an EmailRecord.
type Status string

const (
	StatusPending         Status = "pending"
	StatusDrafted         Status = "drafted"
	StatusReworkRequested Status = "rework_requested"
	StatusSent            Status = "sent"
	StatusSkipped         Status = "skipped"
	StatusArchived        Status = "archived"
)

// StatusNew is the pseudo state of a thread without a record.
const StatusNew Status = ""

var transitions = map[Status][]Status{
	StatusNew:             {StatusPending, StatusSkipped},
	StatusPending:         {StatusDrafted, StatusSkipped, StatusArchived, StatusPending},
	StatusDrafted:         {StatusReworkRequested, StatusSkipped, StatusSent, StatusArchived},
	StatusReworkRequested: {StatusDrafted, StatusSkipped, StatusArchived},
	StatusSkipped:         {StatusPending, StatusArchived},
	StatusSent:            {StatusArchived},
	StatusArchived:        {StatusPending},
}

// Valid reports whether s is a persisted status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok && s != StatusNew
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InitialStatus is the status a freshly classified thread starts in.
func InitialStatus(c Category) Status {
	if c == CategoryNeedsResponse {
		return StatusPending
	}
	return StatusSkipped
}
