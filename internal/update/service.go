package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"otapush/internal/history"
	"otapush/internal/models"
	"otapush/internal/storage"
	"otapush/internal/versioning"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxTries bounds the publish attempts made when writers race.
const DefaultMaxTries = 5

// Service handles release history publishing and device update checks
type Service struct {
	storage    storage.Storage
	kind       versioning.Kind
	logger     *slog.Logger
	recorder   DecisionRecorder
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithDecisionRecorder reports every update check outcome to r.
func WithDecisionRecorder(r DecisionRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithRetry overrides how publish conflicts are retried.
func WithRetry(maxTries uint, newBackOff func() backoff.BackOff) Option {
	return func(s *Service) {
		if maxTries > 0 {
			s.maxTries = maxTries
		}
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// NewService creates an update service over storage whose histories follow
// the versioning scheme kind.
func NewService(storage storage.Storage, kind versioning.Kind, opts ...Option) *Service {
	s := &Service{
		storage:  storage,
		kind:     kind,
		logger:   slog.Default(),
		maxTries: DefaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the versioning scheme the service enforces.
func (s *Service) Kind() versioning.Kind {
	return s.kind
}

func (s *Service) checkKey(key models.HistoryKey) (models.HistoryKey, error) {
	key = models.NewHistoryKey(key.BinaryVersion, key.Platform, key.Identifier)
	if err := key.Validate(); err != nil {
		return key, NewInvalidRequestError("invalid history key", err)
	}
	if err := versioning.ValidateVersion(s.kind, key.BinaryVersion); err != nil {
		return key, NewValidationError(fmt.Sprintf("invalid binary version %q", key.BinaryVersion), err)
	}
	return key, nil
}

// CreateHistory publishes the initial history for a binary version. It fails
// with a conflict if the history already exists.
func (s *Service) CreateHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key, err := s.checkKey(key)
	if err != nil {
		return nil, err
	}

	h := history.New(key.BinaryVersion)
	rev, err := s.storage.PublishReleaseHistory(ctx, key, h, 0)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, NewConflictError(fmt.Sprintf("release history for %s already exists", key), err)
		}
		return nil, classify(key, "failed to create release history", err)
	}

	s.logger.InfoContext(ctx, "release history created", "history", key.String(), "revision", rev)
	return &models.HistoryRecord{Key: key, History: h, Revision: rev}, nil
}

// Release adds appVersion to the history for key.
func (s *Service) Release(ctx context.Context, key models.HistoryKey, appVersion string, info models.ReleaseInfo) (*models.HistoryRecord, error) {
	key, err := s.checkKey(key)
	if err != nil {
		return nil, err
	}
	if err := versioning.ValidateVersion(s.kind, appVersion); err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid app version %q", appVersion), err)
	}
	if err := history.ValidateRollout(info.Rollout); err != nil {
		return nil, NewValidationError("invalid rollout", err)
	}

	rec, err := s.publish(ctx, key, func(h models.ReleaseHistory) (models.ReleaseHistory, error) {
		return history.AddRelease(h, appVersion, info)
	})
	if err != nil {
		return nil, classify(key, fmt.Sprintf("failed to release v%s", appVersion), err)
	}

	s.logger.InfoContext(ctx, "release published",
		"history", key.String(),
		"app_version", appVersion,
		"mandatory", info.Mandatory,
		"enabled", info.Enabled,
		"rollout", info.RolloutPercent(),
		"revision", rec.Revision,
	)
	return rec, nil
}

// UpdateRelease changes the flags named by u on appVersion.
func (s *Service) UpdateRelease(ctx context.Context, key models.HistoryKey, appVersion string, u history.Update) (*models.HistoryRecord, error) {
	key, err := s.checkKey(key)
	if err != nil {
		return nil, err
	}
	if u.Empty() {
		return nil, NewInvalidRequestError("No options specified.", history.ErrNoChanges)
	}
	if err := history.ValidateRollout(u.Rollout); err != nil {
		return nil, NewValidationError("invalid rollout", err)
	}

	rec, err := s.publish(ctx, key, func(h models.ReleaseHistory) (models.ReleaseHistory, error) {
		return history.UpdateRelease(h, appVersion, u)
	})
	if err != nil {
		return nil, classify(key, fmt.Sprintf("failed to update v%s", appVersion), err)
	}

	s.logger.InfoContext(ctx, "release updated", "history", key.String(), "app_version", appVersion, "revision", rec.Revision)
	return rec, nil
}

// ShowHistory returns the stored history for key.
func (s *Service) ShowHistory(ctx context.Context, key models.HistoryKey) (*models.HistoryRecord, error) {
	key = models.NewHistoryKey(key.BinaryVersion, key.Platform, key.Identifier)
	if err := key.Validate(); err != nil {
		return nil, NewInvalidRequestError("invalid history key", err)
	}

	rec, err := s.storage.FetchReleaseHistory(ctx, key)
	if err != nil {
		return nil, classify(key, "failed to fetch release history", err)
	}
	return rec, nil
}

// ListHistories returns the binary versions with a history.
func (s *Service) ListHistories(ctx context.Context, platform, identifier string) ([]string, error) {
	probe := models.NewHistoryKey("list", platform, identifier)
	if err := probe.Validate(); err != nil {
		return nil, NewInvalidRequestError("invalid platform or identifier", err)
	}

	versions, err := s.storage.ListHistories(ctx, probe.Platform, probe.Identifier)
	if err != nil {
		return nil, NewInternalError("failed to list release histories", err)
	}
	return versions, nil
}

// publish runs a fetch, mutate, compare-and-swap cycle. Revision conflicts
// are retried with backoff; every other error ends the loop at once.
func (s *Service) publish(ctx context.Context, key models.HistoryKey, mutate func(models.ReleaseHistory) (models.ReleaseHistory, error)) (*models.HistoryRecord, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (*models.HistoryRecord, error) {
		attempt++
		cur, err := s.storage.FetchReleaseHistory(ctx, key)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		next, err := mutate(cur.History)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		// Building an engine checks every key against the configured scheme.
		if _, err := versioning.New(s.kind, next); err != nil {
			return nil, backoff.Permanent(err)
		}

		rev, err := s.storage.PublishReleaseHistory(ctx, key, next, cur.Revision)
		if errors.Is(err, storage.ErrConflict) {
			s.logger.DebugContext(ctx, "release history changed underneath, retrying", "history", key.String(), "attempt", attempt)
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return &models.HistoryRecord{Key: key, History: next, Revision: rev}, nil
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxTries),
	)
}

// CheckForUpdate answers a device update check.
func (s *Service) CheckForUpdate(ctx context.Context, platform, identifier string, req *models.UpdateCheckRequest) (*models.UpdateCheckResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid update check request", err)
	}

	key := models.NewHistoryKey(req.AppVersion, platform, identifier)
	if err := key.Validate(); err != nil {
		return nil, NewInvalidRequestError("invalid update check request", err)
	}

	resp := models.NewNoUpdateResponse(req.AppVersion)
	resp.Label = req.Label
	resp.PackageHash = req.PackageHash

	rec, err := s.storage.FetchReleaseHistory(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		// Nothing was ever released for this binary: only a store update helps.
		resp.UpdateAppVersion = !req.IsCompanion
		s.record(ctx, key.Platform, "update_app_version")
		return &resp, nil
	}
	if err != nil {
		return nil, NewInternalError("failed to fetch release history", err)
	}

	engine, err := versioning.New(s.kind, rec.History)
	if err != nil {
		return nil, NewInternalError(fmt.Sprintf("stored release history for %s is invalid", key), err)
	}

	decision, err := engine.Decide(req.Label)
	switch {
	case errors.Is(err, versioning.ErrNoReleaseFound):
		s.record(ctx, key.Platform, versioning.ActionNoUpdate.String())
		return &resp, nil
	case errors.Is(err, versioning.ErrInvalidArgument):
		return nil, NewValidationError(fmt.Sprintf("invalid label %q", req.Label), err)
	case err != nil:
		return nil, NewInternalError("failed to decide update", err)
	}

	target := decision.Target
	switch decision.Action {
	case versioning.ActionRollbackToBinary:
		resp.ShouldRunBinaryVersion = true
		resp.IsMandatory = true
	case versioning.ActionRollback:
		resp.IsAvailable = true
		resp.IsMandatory = true
		resp.SetTarget(target.Version, target.Info)
	case versioning.ActionOptionalUpdate, versioning.ActionMandatoryUpdate:
		if !InRollout(req.ClientUniqueID, target.Version, target.Info.RolloutPercent()) {
			s.logger.DebugContext(ctx, "release held back by rollout",
				"history", key.String(), "target", target.Version, "rollout", target.Info.RolloutPercent())
			s.record(ctx, key.Platform, "held_by_rollout")
			return &resp, nil
		}
		resp.IsAvailable = true
		resp.IsMandatory = decision.Mandatory
		resp.SetTarget(target.Version, target.Info)
	}

	s.logger.DebugContext(ctx, "update check",
		"history", key.String(),
		"label", req.Label,
		"action", decision.Action.String(),
		"target", target.Version,
	)
	s.record(ctx, key.Platform, decision.Action.String())
	return &resp, nil
}

func (s *Service) record(ctx context.Context, platform, action string) {
	if s.recorder != nil {
		s.recorder.RecordDecision(ctx, platform, action)
	}
}
