package update

import (
	"context"
	"otapush/internal/history"
	"otapush/internal/models"
)

// ServiceInterface defines the interface for update service operations
type ServiceInterface interface {
	// CheckForUpdate decides what a device running req should do
	CheckForUpdate(ctx context.Context, platform, identifier string, req *models.UpdateCheckRequest) (*models.UpdateCheckResponse, error)

	// CreateHistory starts the release history for a binary version
	CreateHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error)

	// Release adds a release to an existing history
	Release(ctx context.Context, key models.HistoryKey, appVersion string, info models.ReleaseInfo) (*models.HistoryRecord, error)

	// UpdateRelease changes flags on a published release
	UpdateRelease(ctx context.Context, key models.HistoryKey, appVersion string, u history.Update) (*models.HistoryRecord, error)

	// ShowHistory returns the stored history
	ShowHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error)

	// ListHistories returns the binary versions with a history
	ListHistories(ctx context.Context, platform, identifier string) ([]string, error)
}

// DecisionRecorder receives the outcome of every update check.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, platform, action string)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
