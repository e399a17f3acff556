// Package workflow loads workflow and skill workflow definitions from YAML
// documents and validates them at load time.
package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mbright/conductor/internal/skill"
	"github.com/mbright/conductor/pkg/models"
)

// Set holds all definitions loaded from a definitions directory.
type Set struct {
	// Workflows maps workflow ID to its definition.
	Workflows map[string]*models.WorkflowDefinition
	// Skills maps skill workflow ID to its definition.
	Skills map[string]*models.SkillWorkflow
}

// document is the on-disk shape of one definition file. Kind selects which
// section applies; when empty it is inferred from whichever section is
// present.
type document struct {
	Kind     string                     `yaml:"kind,omitempty"`
	Workflow *models.WorkflowDefinition `yaml:"workflow,omitempty"`
	Skill    *models.SkillWorkflow      `yaml:"skill_workflow,omitempty"`
}

// LoadDir reads every .yaml/.yml file in dir, parses the definitions, and
// validates the resulting set. A missing directory yields an empty set.
func LoadDir(dir string) (*Set, error) {
	set := &Set{
		Workflows: make(map[string]*models.WorkflowDefinition),
		Skills:    make(map[string]*models.SkillWorkflow),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("reading definitions dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := set.loadFile(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// loadFile parses a single definition file into the set without validating.
func (s *Set) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	switch {
	case doc.Workflow != nil:
		if doc.Kind != "" && doc.Kind != "workflow" {
			return fmt.Errorf("%s: kind %q does not match workflow section", path, doc.Kind)
		}
		if doc.Workflow.ID == "" {
			return fmt.Errorf("%s: workflow without an id", path)
		}
		if _, dup := s.Workflows[doc.Workflow.ID]; dup {
			return fmt.Errorf("%s: duplicate workflow id %q", path, doc.Workflow.ID)
		}
		s.Workflows[doc.Workflow.ID] = doc.Workflow

	case doc.Skill != nil:
		if doc.Kind != "" && doc.Kind != "skill_workflow" {
			return fmt.Errorf("%s: kind %q does not match skill_workflow section", path, doc.Kind)
		}
		if doc.Skill.ID == "" {
			return fmt.Errorf("%s: skill workflow without an id", path)
		}
		if _, dup := s.Skills[doc.Skill.ID]; dup {
			return fmt.Errorf("%s: duplicate skill workflow id %q", path, doc.Skill.ID)
		}
		s.Skills[doc.Skill.ID] = doc.Skill

	default:
		return fmt.Errorf("%s: no workflow or skill_workflow section", path)
	}

	return nil
}

// Validate checks the loaded set for structural errors: duplicate stage ids,
// unknown prerequisite references, invalid skill workflow graphs, and
// triggers naming stages no workflow defines.
func (s *Set) Validate() error {
	stageIDs := make(map[string]bool)

	for id, wf := range s.Workflows {
		seen := make(map[string]bool, len(wf.Stages))
		for _, st := range wf.Stages {
			if st.ID == "" {
				return fmt.Errorf("workflow %s: stage without an id", id)
			}
			if seen[st.ID] {
				return fmt.Errorf("workflow %s: duplicate stage id %q", id, st.ID)
			}
			seen[st.ID] = true
			stageIDs[st.ID] = true
		}
		for _, st := range wf.Stages {
			for _, prereq := range st.Prerequisites {
				if !seen[prereq] {
					return fmt.Errorf("workflow %s: stage %s requires unknown stage %q", id, st.ID, prereq)
				}
			}
		}
	}

	for id, sw := range s.Skills {
		if err := skill.Validate(sw); err != nil {
			return fmt.Errorf("skill workflow %s: %w", id, err)
		}
		if sw.Trigger != nil && sw.Trigger.StageID != "" && len(s.Workflows) > 0 {
			if !stageIDs[sw.Trigger.StageID] {
				return fmt.Errorf("skill workflow %s: trigger names unknown stage %q", id, sw.Trigger.StageID)
			}
		}
	}

	return nil
}

// TriggeredFor returns the skill workflows attached to the given stage,
// sorted by ID for deterministic firing order. Trigger conditions are
// evaluated at run time, not here.
func (s *Set) TriggeredFor(stageID string) []*models.SkillWorkflow {
	var fired []*models.SkillWorkflow
	for _, sw := range s.Skills {
		if sw.Trigger != nil && sw.Trigger.StageID == stageID {
			fired = append(fired, sw)
		}
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i].ID < fired[j].ID })
	return fired
}

// SkillList returns all skill workflows sorted by ID.
func (s *Set) SkillList() []*models.SkillWorkflow {
	list := make([]*models.SkillWorkflow, 0, len(s.Skills))
	for _, sw := range s.Skills {
		list = append(list, sw)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
