package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusPending, true},
		{StatusNew, StatusDrafted, false},
		{StatusPending, StatusDrafted, true},
		{StatusPending, StatusPending, true},
		{StatusDrafted, StatusReworkRequested, true},
		{StatusDrafted, StatusPending, false},
		{StatusReworkRequested, StatusDrafted, true},
		{StatusReworkRequested, StatusSent, false},
		{StatusSkipped, StatusPending, true},
		{StatusSent, StatusArchived, true},
		{StatusSent, StatusPending, false},
		{StatusArchived, StatusPending, true},
		{StatusArchived, StatusDrafted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestInitialStatus(t *testing.T) {
	if InitialStatus(CategoryNeedsResponse) != StatusPending {
		t.Error("needs_response should start pending")
	}
	for _, c := range []Category{CategoryActionRequired, CategoryPaymentRequest, CategoryFYI, CategoryWaiting} {
		if InitialStatus(c) != StatusSkipped {
			t.Errorf("%s should start skipped", c)
		}
	}
}

func TestLabelMap(t *testing.T) {
	m := NewLabelMap([]LabelMapping{
		{LabelKey: LabelOutbox, GmailLabelID: "Label_1"},
		{LabelKey: LabelRework, GmailLabelID: "Label_2"},
		{LabelKey: "bogus", GmailLabelID: "Label_3"},
	})
	if m.ID(LabelOutbox) != "Label_1" {
		t.Errorf("unexpected outbox id %q", m.ID(LabelOutbox))
	}
	if k, ok := m.Key("Label_2"); !ok || k != LabelRework {
		t.Errorf("unexpected reverse lookup %q %v", k, ok)
	}
	if _, ok := m.Key("Label_3"); ok {
		t.Error("unknown keys must be ignored")
	}
	if ids := m.IDs(LabelDone, LabelOutbox); len(ids) != 1 || ids[0] != "Label_1" {
		t.Errorf("unexpected ids %v", ids)
	}
	var nilMap *LabelMap
	if nilMap.ID(LabelDone) != "" {
		t.Error("nil map should resolve nothing")
	}
}
