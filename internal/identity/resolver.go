// ABOUTME: Resolves the active customer id from a cached id and optional external identity metadata.
// ABOUTME: External identity takes precedence; a rebind is broadcast so the host can correct its cache.

package identity

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/driftchat/widgetsync/internal/api"
	"github.com/driftchat/widgetsync/internal/hostbridge"
	"github.com/driftchat/widgetsync/internal/model"
)

// Backend is the subset of the API the resolver needs.
type Backend interface {
	CheckCustomerExists(ctx context.Context, customerID string) (bool, error)
	FindCustomerByExternalID(ctx context.Context, externalID string, filters api.LookupFilters) (*model.Customer, error)
}

// Resolver decides which customer id is active for this session.
type Resolver struct {
	backend Backend
	sink    hostbridge.Sink
	logger  *slog.Logger
}

// NewResolver creates a resolver. Pass nil logger for default.
func NewResolver(backend Backend, sink hostbridge.Sink, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		backend: backend,
		sink:    sink,
		logger:  logger.With("component", "identity"),
	}
}

// Resolve returns the active customer id, or "" when the visitor should be
// treated as unseen.
//
// Without an external id in the metadata the cached id is trusted verbatim
// (after a validity check). With one, the backend lookup is authoritative:
// no match clears the cached id, a differing match is adopted and announced
// to the host page via customer:updated so the cache can be corrected.
func (r *Resolver) Resolve(ctx context.Context, cachedID string, meta model.CustomerMetadata) (string, error) {
	cachedID = r.validatedCachedID(ctx, cachedID)

	if !meta.HasExternalID() {
		return cachedID, nil
	}

	match, err := r.backend.FindCustomerByExternalID(ctx, meta.ExternalID, api.LookupFilters{
		Email: meta.Email,
		Host:  meta.Host,
	})
	if err != nil {
		return "", err
	}

	if match == nil {
		// The external identity takes precedence over any cached id:
		// an unknown external id means an unseen visitor.
		r.logger.Debug("no customer matched external id", "external_id", meta.ExternalID)
		return "", nil
	}

	if match.ID != cachedID {
		r.logger.Info("rebinding customer id",
			"cached_id", cachedID,
			"matched_id", match.ID)
		r.sink.Emit(hostbridge.CustomerUpdated(match.ID))
	}
	return match.ID, nil
}

// validatedCachedID returns the cached id if it is syntactically valid and
// the backend does not definitively reject it. Transport errors during the
// probe accept the id: older backend versions lack the endpoint, and treating
// version skew as invalidation would discard working sessions.
func (r *Resolver) validatedCachedID(ctx context.Context, cachedID string) string {
	if cachedID == "" {
		return ""
	}
	if _, err := uuid.Parse(cachedID); err != nil {
		r.logger.Warn("discarding malformed cached customer id", "cached_id", cachedID)
		return ""
	}

	exists, err := r.backend.CheckCustomerExists(ctx, cachedID)
	if err != nil {
		r.logger.Warn("customer validity check failed, assuming valid",
			"cached_id", cachedID,
			"error", err)
		return cachedID
	}
	if !exists {
		r.logger.Debug("cached customer id rejected by backend", "cached_id", cachedID)
		return ""
	}
	return cachedID
}
