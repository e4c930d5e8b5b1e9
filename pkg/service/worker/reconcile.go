package worker

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/opsward/geryon/pkg/domain/interfaces"
	"github.com/opsward/geryon/pkg/domain/model"
	"github.com/opsward/geryon/pkg/domain/types"
	"github.com/opsward/geryon/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// categoryScanLimit bounds how many categories are reconciled concurrently
const categoryScanLimit = 4

// ReconcileWorker periodically folds near-duplicate open issues within each
// category. Concurrent submissions across multiple instances can create
// duplicate issues for the same event before either sees the other; this
// pass is the cleanup for that window.
//
// Architecture assumptions:
// - Single worker instance (no distributed locking)
// - For horizontal scaling, run the worker on exactly one instance
type ReconcileWorker struct {
	repo       interfaces.Repository
	categories []types.CategoryID
	threshold  float64
	interval   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewReconcileWorker creates a worker that reconciles the given categories
// with the given similarity threshold.
func NewReconcileWorker(repo interfaces.Repository, categories []types.CategoryID, threshold float64, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		repo:       repo,
		categories: categories,
		threshold:  threshold,
		interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background reconcile loop. Does not block.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	if len(w.categories) == 0 {
		return goerr.New("reconcile worker requires a configured category list")
	}

	logging.Default().Info("reconcile worker starting",
		"interval", w.interval.String(),
		"categories", len(w.categories))

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *ReconcileWorker) Stop() {
	logging.Default().Info("reconcile worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("reconcile worker stopped")
}

func (w *ReconcileWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Reconcile(ctx); err != nil {
				// Log error but continue worker
				logging.Default().Error("reconcile pass failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Reconcile runs one full pass over all configured categories
func (w *ReconcileWorker) Reconcile(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(categoryScanLimit)

	for _, category := range w.categories {
		eg.Go(func() error {
			return w.reconcileCategory(egCtx, category)
		})
	}

	return eg.Wait()
}

// reconcileCategory folds open issues in a category whose pairwise
// similarity exceeds the threshold. The older issue survives; the newer one
// is closed with a pointer to the survivor and its duplicate count is folded
// into the survivor's.
func (w *ReconcileWorker) reconcileCategory(ctx context.Context, category types.CategoryID) error {
	issues, err := w.repo.Issue().ListOpenByCategory(ctx, category)
	if err != nil {
		return goerr.Wrap(err, "failed to list open issues", goerr.V("category", category))
	}

	sort.Slice(issues, func(i, j int) bool {
		return issues[i].CreatedAt.Before(issues[j].CreatedAt)
	})

	absorbed := make(map[types.IssueID]bool)

	for i, survivor := range issues {
		if absorbed[survivor.ID] || len(survivor.SummaryEmbedding) == 0 {
			continue
		}

		for _, newer := range issues[i+1:] {
			if absorbed[newer.ID] || len(newer.SummaryEmbedding) == 0 {
				continue
			}

			score, err := model.CosineSimilarity(survivor.SummaryEmbedding, newer.SummaryEmbedding)
			if err != nil {
				// One corrupt record must not abort the whole pass
				logging.From(ctx).Error("skipping unscorable issue pair",
					"survivor", survivor.ID, "candidate", newer.ID, "error", err.Error())
				continue
			}

			if score <= w.threshold {
				continue
			}

			if err := w.fold(ctx, survivor, newer); err != nil {
				return err
			}
			absorbed[newer.ID] = true

			logging.From(ctx).Info("reconciled duplicate issues",
				"category", category,
				"survivor", survivor.ID,
				"folded", newer.ID,
				"score", score,
			)
		}
	}

	return nil
}

// fold closes dup in favor of survivor and moves its accumulated count over.
// Both writes are server-side atomic operations on the current stored state,
// never the listing snapshot, so merges landing on either issue while the
// pass runs are not lost.
func (w *ReconcileWorker) fold(ctx context.Context, survivor, dup *model.Issue) error {
	now := time.Now().UTC()

	closed, err := w.repo.Issue().CloseAsDuplicate(ctx, dup.ID, survivor.ID, now)
	if err != nil {
		return goerr.Wrap(err, "failed to close folded issue", goerr.V("id", dup.ID))
	}

	if err := w.repo.Issue().AddDuplicateCount(ctx, survivor.ID, closed.DuplicateCount, now); err != nil {
		return goerr.Wrap(err, "failed to update surviving issue", goerr.V("id", survivor.ID))
	}

	return nil
}
