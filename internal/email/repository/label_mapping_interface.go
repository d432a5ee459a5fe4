package repository

import (
	"context"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
)

// LabelMappingRepository reads the per-user managed label table
type LabelMappingRepository interface {
	LabelMap(ctx context.Context, userID string) (*emaildomain.LabelMap, error)
	// Save stores a mapping. Onboarding owns label creation; this exists for
	// the setup tooling and tests.
	Save(ctx context.Context, mapping *emaildomain.LabelMapping) error
}
