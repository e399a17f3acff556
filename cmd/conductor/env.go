package main

import (
	"fmt"
	"time"

	"github.com/mbright/conductor/internal/checkpoint"
	"github.com/mbright/conductor/internal/config"
	"github.com/mbright/conductor/internal/records"
	"github.com/mbright/conductor/internal/retry"
	"github.com/mbright/conductor/internal/stage"
	"github.com/mbright/conductor/internal/workflow"
	"github.com/mbright/conductor/pkg/models"
)

// environment bundles the loaded configuration, definitions, and stores the
// commands operate on.
type environment struct {
	cfg         *config.Config
	defs        *workflow.Set
	checkpoints *checkpoint.Store
}

// loadEnvironment loads config and definitions. Stores that hit the
// filesystem lazily (records DB) are opened by the commands that need them.
func loadEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	defs, err := workflow.LoadDir(cfg.Storage.DefinitionsDir)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}

	return &environment{
		cfg:         cfg,
		defs:        defs,
		checkpoints: checkpoint.NewStore(cfg.Storage.StateDir),
	}, nil
}

// selectWorkflow resolves the target workflow from the --workflow flag,
// defaulting to the only loaded workflow when unambiguous.
func (e *environment) selectWorkflow() (*models.WorkflowDefinition, error) {
	if flagWorkflow != "" {
		wf := e.defs.Workflows[flagWorkflow]
		if wf == nil {
			return nil, fmt.Errorf("unknown workflow %q", flagWorkflow)
		}
		return wf, nil
	}

	if len(e.defs.Workflows) == 1 {
		for _, wf := range e.defs.Workflows {
			return wf, nil
		}
	}
	if len(e.defs.Workflows) == 0 {
		return nil, fmt.Errorf("no workflow definitions found in %s", e.cfg.Storage.DefinitionsDir)
	}
	return nil, fmt.Errorf("multiple workflows loaded, pick one with --workflow")
}

// newMachine builds a stage machine with the standard validator registry,
// state persistence, and any previously saved execution state restored.
func (e *environment) newMachine(wf *models.WorkflowDefinition) (*stage.Machine, error) {
	registry := stage.NewValidatorRegistry()
	registry.Register("file_exists", stage.FileExistsValidator())
	registry.Register("artifacts", stage.FileExistsValidator())

	m := stage.NewMachine(wf, registry)
	m.SetWorkspace(e.cfg.Storage.WorkspaceDir)
	m.SetPersister(e.checkpoints)

	saved, err := e.checkpoints.LoadState(wf.ID)
	if err != nil {
		return nil, fmt.Errorf("load execution state: %w", err)
	}
	if saved != nil {
		m.RestoreState(saved)
	}
	return m, nil
}

// openRecords opens the execution record database, migrating its schema.
func (e *environment) openRecords() (*records.Store, error) {
	store, err := records.Open(e.cfg.Storage.RecordsDB)
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate records db: %w", err)
	}
	return store, nil
}

// defaultRetryPolicy maps the configured retry defaults onto a policy.
func (e *environment) defaultRetryPolicy() retry.Policy {
	p := retry.Policy{
		Strategy:   retry.Strategy(e.cfg.Retry.Strategy),
		BaseDelay:  e.cfg.Retry.BaseDelay,
		MaxDelay:   e.cfg.Retry.MaxDelay,
		MaxRetries: e.cfg.Retry.MaxRetries,
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}
