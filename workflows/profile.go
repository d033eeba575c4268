// Package workflows runs profile saves as durable DBOS workflows when a
// Postgres database is configured.
package workflows

import (
	"context"
	"fmt"

	"diet-chat/models"
	"diet-chat/profile"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"go.uber.org/zap"
)

// ProfileWorkflows contains DBOS workflows for profile updates
type ProfileWorkflows struct {
	store  *profile.Store
	logger *zap.Logger
}

// NewProfileWorkflows creates a new ProfileWorkflows instance
func NewProfileWorkflows(store *profile.Store, logger *zap.Logger) *ProfileWorkflows {
	return &ProfileWorkflows{store: store, logger: logger}
}

// Register registers every workflow with dbosCtx. It must run before
// dbos.Launch.
func (w *ProfileWorkflows) Register(dbosCtx dbos.DBOSContext) {
	dbos.RegisterWorkflow(dbosCtx, w.SaveProfileWorkflow)
}

// SaveProfileWorkflow stores a submitted profile. If the process dies
// after the save step completed, recovery returns the recorded result
// instead of writing again.
func (w *ProfileWorkflows) SaveProfileWorkflow(ctx dbos.DBOSContext, fields models.UserProfile) (models.UserProfile, error) {
	return dbos.RunAsStep(ctx, func(stepCtx context.Context) (models.UserProfile, error) {
		return w.save(stepCtx, fields)
	})
}

func (w *ProfileWorkflows) save(ctx context.Context, fields models.UserProfile) (models.UserProfile, error) {
	saved, err := w.store.Save(ctx, fields)
	if err != nil {
		return nil, err
	}
	w.logger.Info("Profile saved by workflow", zap.Int("fields", len(saved)))
	return saved, nil
}

// DurableSaver saves profiles through SaveProfileWorkflow
type DurableSaver struct {
	dbosCtx dbos.DBOSContext
	wf      *ProfileWorkflows
}

// NewDurableSaver returns a saver bound to a launched DBOS context
func NewDurableSaver(dbosCtx dbos.DBOSContext, wf *ProfileWorkflows) *DurableSaver {
	return &DurableSaver{dbosCtx: dbosCtx, wf: wf}
}

// Save runs the workflow and waits for its result. ctx is unused; the
// workflow runs on the DBOS context so it can be recovered.
func (s *DurableSaver) Save(_ context.Context, fields models.UserProfile) (models.UserProfile, error) {
	handle, err := dbos.RunWorkflow(s.dbosCtx, s.wf.SaveProfileWorkflow, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to start profile workflow: %w", err)
	}
	saved, err := handle.GetResult()
	if err != nil {
		return nil, fmt.Errorf("profile workflow failed: %w", err)
	}
	return saved, nil
}
