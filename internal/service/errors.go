package service

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/imobflow/imobflow/internal/store"
	"github.com/imobflow/imobflow/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	notFoundErrors = []error{
		store.ErrUserNotFound,
		store.ErrTenantNotFound,
		store.ErrPropertyNotFound,
		store.ErrContactNotFound,
		store.ErrCampaignNotFound,
		store.ErrSessionNotFound,
	}
	conflictErrors = []error{
		store.ErrUserAlreadyExists,
		store.ErrTenantAlreadyExists,
		store.ErrDuplicateID,
	}
)

// storeError converts a store error into a connect error. Lost updates
// become CodeAborted so clients can re-read and retry.
func storeError(ctx context.Context, kind string, err error) error {
	if err == nil {
		return nil
	}

	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return err
	}

	if errors.Is(err, store.ErrVersionConflict) {
		telemetry.GetMetrics().VersionConflictsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
		))
		return connect.NewError(connect.CodeAborted, fmt.Errorf("%s was modified concurrently, reload and retry", kind))
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return connect.NewError(connect.CodeNotFound, err)
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return connect.NewError(connect.CodeAlreadyExists, err)
		}
	}

	zerolog.Ctx(ctx).Error().Err(err).Str("kind", kind).Msg("Store operation failed")
	return connect.NewError(connect.CodeInternal, fmt.Errorf("%s: internal error", kind))
}

func invalidArgument(format string, args ...any) error {
	return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf(format, args...))
}

func failedPrecondition(format string, args ...any) error {
	return connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf(format, args...))
}

func notFound(format string, args ...any) error {
	return connect.NewError(connect.CodeNotFound, fmt.Errorf(format, args...))
}

func alreadyExists(format string, args ...any) error {
	return connect.NewError(connect.CodeAlreadyExists, fmt.Errorf(format, args...))
}

// checkVersion rejects a write when the caller holds a stale copy. A zero
// expected version skips the check.
func checkVersion(ctx context.Context, kind string, expected, current int64) error {
	if expected == 0 || expected == current {
		return nil
	}
	return storeError(ctx, kind, store.ErrVersionConflict)
}
