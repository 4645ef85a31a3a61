package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"gopkg.in/yaml.v3"
)

// Manual triggers a script step can ask for instead of a notification.
const (
	actionFreeze        = "freeze"
	actionUnfreeze      = "unfreeze"
	actionUnfreezeHard  = "unfreeze_hard"
	actionUpdateAll     = "update_all"
	actionUpdateCurrent = "update_current"
	actionPurge         = "purge"
	actionBake          = "bake"
)

var actions = map[string]bool{
	actionFreeze:        true,
	actionUnfreeze:      true,
	actionUnfreezeHard:  true,
	actionUpdateAll:     true,
	actionUpdateCurrent: true,
	actionPurge:         true,
	actionBake:          true,
}

// Script is a recorded session: host notifications and manual triggers
// replayed against one engine.
type Script struct {
	// Tree is the default tree for steps that name none.
	Tree string `yaml:"tree"`
	// Vars are substituted for ${name} references by Expand.
	Vars  map[string]any `yaml:"vars"`
	Steps []Step         `yaml:"steps"`
}

// Step is either a host notification or, when Do is set, a manual trigger.
type Step struct {
	Do                 string `yaml:"do,omitempty"`
	event.Notification `yaml:",inline"`
}

// Label describes the step in reports.
func (s Step) Label() string {
	if s.Do != "" {
		return s.Do
	}
	switch {
	case s.Link != nil:
		return s.Callback + " " + s.Link.String()
	case s.NodeName != "":
		return s.Callback + " " + s.NodeName
	default:
		return s.Callback
	}
}

// LoadScript reads and validates a YAML script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if s.Tree == "" {
		s.Tree = "main"
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) validate() error {
	var errs []error
	for i, step := range s.Steps {
		switch {
		case step.Do != "" && step.Callback != "":
			errs = append(errs, fmt.Errorf("step %d: both do and callback set", i+1))
		case step.Do != "" && !actions[step.Do]:
			errs = append(errs, fmt.Errorf("step %d: unknown action %q", i+1, step.Do))
		case step.Do == "":
			if _, ok := event.FromCallback(step.Callback); !ok {
				errs = append(errs, fmt.Errorf("step %d: unknown callback %q", i+1, step.Callback))
			}
		}
	}
	return errors.Join(errs...)
}
