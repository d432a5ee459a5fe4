package domain

// Category is the triage outcome of a thread.
type Category string

const (
	CategoryNeedsResponse  Category = "needs_response"
	CategoryActionRequired Category = "action_required"
	CategoryPaymentRequest Category = "payment_request"
	CategoryFYI            Category = "fyi"
	CategoryWaiting        Category = "waiting"
)

// Categories lists every category in prompt order.
var Categories = []Category{
	CategoryNeedsResponse,
	CategoryActionRequired,
	CategoryPaymentRequest,
	CategoryFYI,
	CategoryWaiting,
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// ParseCategory converts s to a Category.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// LabelKey returns the managed label that projects c onto the mailbox.
func (c Category) LabelKey() LabelKey {
	return LabelKey(c)
}

// Confidence of a classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Valid reports whether c is a defined confidence level.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// EventType is the closed vocabulary of audit events.
type EventType string

const (
	EventClassified         EventType = "classified"
	EventLabelAdded         EventType = "label_added"
	EventLabelRemoved       EventType = "label_removed"
	EventDraftCreated       EventType = "draft_created"
	EventDraftTrashed       EventType = "draft_trashed"
	EventDraftReworked      EventType = "draft_reworked"
	EventSentDetected       EventType = "sent_detected"
	EventArchived           EventType = "archived"
	EventReworkLimitReached EventType = "rework_limit_reached"
	EventWaitingRetriaged   EventType = "waiting_retriaged"
	EventError              EventType = "error"
)

// Valid reports whether t belongs to the audit vocabulary.
func (t EventType) Valid() bool {
	switch t {
	case EventClassified, EventLabelAdded, EventLabelRemoved, EventDraftCreated,
		EventDraftTrashed, EventDraftReworked, EventSentDetected, EventArchived,
		EventReworkLimitReached, EventWaitingRetriaged, EventError:
		return true
	}
	return false
}

// LabelKey names a managed workflow label.
type LabelKey string

const (
	LabelNeedsResponse  LabelKey = "needs_response"
	LabelActionRequired LabelKey = "action_required"
	LabelPaymentRequest LabelKey = "payment_request"
	LabelFYI            LabelKey = "fyi"
	LabelWaiting        LabelKey = "waiting"
	LabelOutbox         LabelKey = "outbox"
	LabelRework         LabelKey = "rework"
	LabelDone           LabelKey = "done"
)

// LabelKeys lists every managed label.
var LabelKeys = []LabelKey{
	LabelNeedsResponse,
	LabelActionRequired,
	LabelPaymentRequest,
	LabelFYI,
	LabelWaiting,
	LabelOutbox,
	LabelRework,
	LabelDone,
}

// Valid reports whether k is a managed label key.
func (k LabelKey) Valid() bool {
	for _, v := range LabelKeys {
		if k == v {
			return true
		}
	}
	return false
}

// DisplayName is the label name created in the mailbox during onboarding.
func (k LabelKey) DisplayName() string {
	switch k {
	case LabelNeedsResponse:
		return "🤖 AI/Needs Response"
	case LabelActionRequired:
		return "🤖 AI/Action Required"
	case LabelPaymentRequest:
		return "🤖 AI/Payment Requests"
	case LabelFYI:
		return "🤖 AI/FYI"
	case LabelWaiting:
		return "🤖 AI/Waiting"
	case LabelOutbox:
		return "🤖 AI/Outbox"
	case LabelRework:
		return "🤖 AI/Rework"
	case LabelDone:
		return "🤖 AI/Done"
	}
	return string(k)
}
