package domain

import "time"

// LabelMapping maps a managed label key to the provider label id of one user.
type LabelMapping struct {
	UserID       string    `json:"user_id" gorm:"primaryKey"`
	LabelKey     LabelKey  `json:"label_key" gorm:"primaryKey;type:varchar(32)"`
	GmailLabelID string    `json:"gmail_label_id" gorm:"not null"`
	GmailName    string    `json:"gmail_label_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// LabelMap is the key to provider id table of one user, and its inverse.
type LabelMap struct {
	byKey map[LabelKey]string
	byID  map[string]LabelKey
}

// NewLabelMap builds a LabelMap from stored mappings. Unknown keys are ignored.
func NewLabelMap(mappings []LabelMapping) *LabelMap {
	m := &LabelMap{byKey: map[LabelKey]string{}, byID: map[string]LabelKey{}}
	for _, lm := range mappings {
		if !lm.LabelKey.Valid() || lm.GmailLabelID == "" {
			continue
		}
		m.byKey[lm.LabelKey] = lm.GmailLabelID
		m.byID[lm.GmailLabelID] = lm.LabelKey
	}
	return m
}

// ID returns the provider id of key, or "" when the user has no such label.
func (m *LabelMap) ID(key LabelKey) string {
	if m == nil {
		return ""
	}
	return m.byKey[key]
}

// Key returns the managed key of a provider label id.
func (m *LabelMap) Key(labelID string) (LabelKey, bool) {
	if m == nil {
		return "", false
	}
	k, ok := m.byID[labelID]
	return k, ok
}

// IDs returns the provider ids of the given keys, skipping unmapped ones.
func (m *LabelMap) IDs(keys ...LabelKey) []string {
	var out []string
	for _, k := range keys {
		if id := m.ID(k); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ClassificationIDs returns the provider ids of the five category labels.
func (m *LabelMap) ClassificationIDs() []string {
	keys := make([]LabelKey, 0, len(Categories))
	for _, c := range Categories {
		keys = append(keys, c.LabelKey())
	}
	return m.IDs(keys...)
}

// AllIDs returns every mapped provider id in LabelKeys order.
func (m *LabelMap) AllIDs() []string {
	return m.IDs(LabelKeys...)
}
