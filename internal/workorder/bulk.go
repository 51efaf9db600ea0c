package workorder

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/webforge/backend/internal/models"
	"github.com/webforge/backend/internal/notify"
)

// Bulk operations.
const (
	OpClaim    = "claim"
	OpComplete = "complete"
	OpCancel   = "cancel"
)

type BulkRequest struct {
	Op      string
	IDs     []uuid.UUID
	ActorID uuid.UUID
	// Reason is used by cancel.
	Reason string
	// Note and ArtifactRefs are used by complete; every id needs a ref.
	Note         string
	ArtifactRefs map[uuid.UUID]string
}

// BulkTransition applies one operation to many orders. Items run independently
// with bounded concurrency; a failed item neither blocks nor undoes the others.
// One notification covering all successful items is sent at the end.
func (s *Service) BulkTransition(ctx context.Context, req BulkRequest) (*models.BulkResult, error) {
	var apply func(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error)
	switch req.Op {
	case OpClaim:
		apply = func(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error) {
			return s.claim(ctx, id, req.ActorID)
		}
	case OpComplete:
		apply = func(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error) {
			o, _, err := s.complete(ctx, CompleteRequest{OrderID: id, ArtifactRef: req.ArtifactRefs[id], Note: req.Note, ActorID: req.ActorID})
			return o, err
		}
	case OpCancel:
		apply = func(ctx context.Context, id uuid.UUID) (*models.WorkOrder, error) {
			return s.cancel(ctx, id, req.Reason, req.ActorID)
		}
	default:
		return nil, models.Invalid("unknown bulk operation %q", req.Op)
	}
	if len(req.IDs) == 0 || len(req.IDs) > models.MaxBulkItems {
		return nil, models.Invalid("bulk request needs between 1 and %d ids", models.MaxBulkItems)
	}

	done := make([]*models.WorkOrder, len(req.IDs))
	errs := make([]error, len(req.IDs))
	var g errgroup.Group
	g.SetLimit(s.cfg.BulkConcurrency)
	for i, id := range req.IDs {
		g.Go(func() error {
			done[i], errs[i] = apply(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	res := &models.BulkResult{Succeeded: []uuid.UUID{}, Failed: []models.BulkFailure{}}
	var items []notify.Item
	var requesters []uuid.UUID
	for i, id := range req.IDs {
		if errs[i] != nil {
			res.Failed = append(res.Failed, models.BulkFailure{ID: id, Error: errs[i].Error()})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
		items = append(items, notify.Item{ID: id, Status: done[i].Status})
		requesters = append(requesters, done[i].RequesterID)
	}
	s.log.Info("bulk transition finished", "op", req.Op, "succeeded", len(res.Succeeded), "failed", len(res.Failed))
	if len(items) > 0 {
		s.dispatch(ctx, notify.Notification{
			Kind:       notify.KindBulkOrders,
			Recipients: notify.Recipients(requesters...),
			Subject:    fmt.Sprintf("%d work orders updated (%s)", len(items), req.Op),
			Items:      items,
		})
	}
	return res, nil
}
