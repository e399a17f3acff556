// Package checkpoint provides durable snapshot/restore of workflow
// execution state. Checkpoints are immutable once created and namespaced
// by workflow ID on disk:
//
//	{root}/{workflow_id}/{checkpoint_id}/checkpoint.json
//	{root}/{workflow_id}/{checkpoint_id}/execution_state.json
//	{root}/{workflow_id}/{checkpoint_id}/progress.json
//	{root}/{workflow_id}/state.json   (current state, saved after transitions)
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbright/conductor/pkg/models"
)

// ErrNotFound indicates no checkpoint exists for the given ID.
var ErrNotFound = errors.New("checkpoint not found")

const (
	checkpointFile = "checkpoint.json"
	stateFile      = "state.json"
	execStateFile  = "execution_state.json"
	progressFile   = "progress.json"
)

// Store persists checkpoints and current execution state under a root
// directory.
type Store struct {
	root string
	mu   sync.Mutex
}

// NewStore creates a checkpoint store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// CreateOptions describes one checkpoint to create.
type CreateOptions struct {
	// WorkflowID namespaces the checkpoint. Required.
	WorkflowID string
	// State is the execution state to snapshot. Required; a deep copy
	// is stored.
	State *models.ExecutionState
	// Name is an optional human-readable name.
	Name string
	// Description optionally explains why the checkpoint was taken.
	Description string
	// StageID is the stage active at checkpoint time, if any.
	StageID string
	// Progress is an optional free-form progress snapshot.
	Progress map[string]any
	// Context is an optional free-form context snapshot.
	Context map[string]any
	// OutputFiles lists artifact paths produced so far.
	OutputFiles []string
	// Metadata carries arbitrary annotations.
	Metadata map[string]string
}

// Create generates a checkpoint ID, timestamps the snapshot, and persists
// it under the workflow's namespace.
func (s *Store) Create(opts CreateOptions) (*models.Checkpoint, error) {
	if opts.WorkflowID == "" {
		return nil, fmt.Errorf("checkpoint requires a workflow id")
	}
	if opts.State == nil {
		return nil, fmt.Errorf("checkpoint requires execution state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := &models.Checkpoint{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Description: opts.Description,
		CreatedAt:   time.Now().UTC(),
		WorkflowID:  opts.WorkflowID,
		StageID:     opts.StageID,
		State:       opts.State.Clone(),
		Progress:    opts.Progress,
		Context:     opts.Context,
		OutputFiles: opts.OutputFiles,
		Metadata:    opts.Metadata,
	}

	dir := filepath.Join(s.root, cp.WorkflowID, cp.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, checkpointFile), cp); err != nil {
		return nil, fmt.Errorf("write checkpoint: %w", err)
	}
	// Sibling documents hold the state and progress portions on their own,
	// so external tooling can read them without parsing the full document.
	if err := writeJSON(filepath.Join(dir, execStateFile), cp.State); err != nil {
		return nil, fmt.Errorf("write execution state: %w", err)
	}
	if cp.Progress != nil {
		if err := writeJSON(filepath.Join(dir, progressFile), cp.Progress); err != nil {
			return nil, fmt.Errorf("write progress: %w", err)
		}
	}

	return cp, nil
}

// List returns checkpoints sorted by creation time, most recent first.
// An empty workflowID lists checkpoints across all workflows.
func (s *Store) List(workflowID string) ([]*models.Checkpoint, error) {
	var workflows []string
	if workflowID != "" {
		workflows = []string{workflowID}
	} else {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read checkpoint root: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				workflows = append(workflows, e.Name())
			}
		}
	}

	var cps []*models.Checkpoint
	for _, wf := range workflows {
		entries, err := os.ReadDir(filepath.Join(s.root, wf))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read workflow directory: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			cp, err := readCheckpoint(filepath.Join(s.root, wf, e.Name(), checkpointFile))
			if err != nil {
				// Unreadable checkpoints are skipped, not fatal.
				continue
			}
			cps = append(cps, cp)
		}
	}

	sort.Slice(cps, func(i, j int) bool {
		return cps[i].CreatedAt.After(cps[j].CreatedAt)
	})
	return cps, nil
}

// Get returns the checkpoint with the given ID.
func (s *Store) Get(id string) (*models.Checkpoint, error) {
	dir, err := s.findDir(id)
	if err != nil {
		return nil, err
	}
	cp, err := readCheckpoint(filepath.Join(dir, checkpointFile))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", id, err)
	}
	return cp, nil
}

// GetLatest returns the most recent checkpoint for a workflow, or
// ErrNotFound when none exists.
func (s *Store) GetLatest(workflowID string) (*models.Checkpoint, error) {
	cps, err := s.List(workflowID)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, ErrNotFound
	}
	return cps[0], nil
}

// Holder receives a restored execution state. The stage machine
// implements this.
type Holder interface {
	RestoreState(state *models.ExecutionState)
}

// RestoredParts reports which portions of a checkpoint were applied.
type RestoredParts struct {
	State    bool `json:"state"`
	Progress bool `json:"progress"`
	Context  bool `json:"context"`
}

// Restore overwrites the holder's live execution state with the
// checkpoint's copy and persists it as the workflow's current state.
func (s *Store) Restore(id string, holder Holder) (RestoredParts, error) {
	cp, err := s.Get(id)
	if err != nil {
		return RestoredParts{}, err
	}

	parts := RestoredParts{
		State:    cp.State != nil,
		Progress: cp.Progress != nil,
		Context:  cp.Context != nil,
	}

	if cp.State != nil {
		holder.RestoreState(cp.State.Clone())
		if err := s.SaveState(cp.WorkflowID, cp.State); err != nil {
			return parts, fmt.Errorf("persist restored state: %w", err)
		}
	}
	return parts, nil
}

// Delete removes all files associated with a checkpoint ID. It returns
// whether anything was deleted.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.findDirLocked(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	return true, nil
}

// SaveState persists the current execution state for a workflow. This is
// independent of checkpoints and is written after every stage transition.
func (s *Store) SaveState(workflowID string, state *models.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, workflowID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return writeJSON(filepath.Join(dir, stateFile), state)
}

// LoadState loads the current execution state for a workflow. A missing or
// corrupt state file degrades to (nil, nil) rather than an error, so a bad
// file never crashes the engine.
func (s *Store) LoadState(workflowID string) (*models.ExecutionState, error) {
	data, err := os.ReadFile(filepath.Join(s.root, workflowID, stateFile))
	if err != nil {
		return nil, nil
	}
	state := &models.ExecutionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, nil
	}
	return state, nil
}

// findDir locates the directory for a checkpoint ID across workflows.
func (s *Store) findDir(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findDirLocked(id)
}

func (s *Store) findDirLocked(id string) (string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read checkpoint root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, e.Name(), id)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", ErrNotFound
}

// writeJSON writes v as indented JSON to path.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// readCheckpoint reads and parses one checkpoint document.
func readCheckpoint(path string) (*models.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cp := &models.Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, err
	}
	return cp, nil
}
