package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mbright/conductor/pkg/models"
)

// Validator checks a single quality gate against a stage. Implementations
// receive the workspace root so they can inspect produced artifacts.
type Validator interface {
	Validate(gate models.QualityGate, st models.Stage, workspace string) (bool, []string)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(gate models.QualityGate, st models.Stage, workspace string) (bool, []string)

// Validate implements Validator.
func (f ValidatorFunc) Validate(gate models.QualityGate, st models.Stage, workspace string) (bool, []string) {
	return f(gate, st, workspace)
}

// ValidatorRegistry maps gate keys to validator implementations. Gates are
// looked up by their explicit validator key, falling back to the gate type.
// An unknown key is a configuration error, never a silent pass.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

// NewValidatorRegistry returns an empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{validators: make(map[string]Validator)}
}

// Register adds a validator under the given key, replacing any existing one.
func (r *ValidatorRegistry) Register(key string, v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[key] = v
}

// Lookup resolves the validator for a gate. The gate's Validator key takes
// precedence; when empty, the gate Type is used.
func (r *ValidatorRegistry) Lookup(gate models.QualityGate) (Validator, error) {
	key := gate.Validator
	if key == "" {
		key = gate.Type
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[key]
	if !ok {
		return nil, fmt.Errorf("no validator registered for gate %q", key)
	}
	return v, nil
}

// FileExistsValidator passes when every criterion names a file that exists
// under the workspace root. It is the reference validator for gates whose
// criteria are artifact paths.
func FileExistsValidator() Validator {
	return ValidatorFunc(func(gate models.QualityGate, st models.Stage, workspace string) (bool, []string) {
		var errs []string
		for _, criterion := range gate.Criteria {
			path := filepath.Join(workspace, criterion)
			if _, err := os.Stat(path); err != nil {
				errs = append(errs, fmt.Sprintf("gate %s: %s not found", gate.Type, criterion))
			}
		}
		return len(errs) == 0, errs
	})
}
