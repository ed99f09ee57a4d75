package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Target describes one harvest destination: either a search term or a page
// in the public ad library. Targets are YAML files under the targets
// directory, one file per target or a list per file.
type Target struct {
	Name     string `yaml:"name"`
	Term     string `yaml:"term,omitempty"`
	PageID   string `yaml:"page_id,omitempty"`
	Country  string `yaml:"country,omitempty"`
	Limit    int    `yaml:"limit,omitempty"`
	Schedule string `yaml:"schedule,omitempty"`
	Enabled  *bool  `yaml:"enabled,omitempty"`
}

func (t Target) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

func (t Target) validate() error {
	if t.Name == "" {
		return fmt.Errorf("target name is required")
	}
	if t.Term == "" && t.PageID == "" {
		return fmt.Errorf("target %q needs a term or a page_id", t.Name)
	}
	if t.Limit < 0 {
		return fmt.Errorf("target %q has a negative limit", t.Name)
	}
	return nil
}

// targetFile accepts both a single target document and a document holding a
// list under "targets".
type targetFile struct {
	Target  `yaml:",inline"`
	Targets []Target `yaml:"targets,omitempty"`
}

// LoadTargets reads every .yaml/.yml file under dir, validates each target,
// and returns them sorted by name. Duplicate names are an error: schedules
// and provenance key off the target name.
func LoadTargets(dir string) ([]Target, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read targets dir: %w", err)
	}

	var targets []Target
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read target file %s: %w", entry.Name(), err)
		}

		var file targetFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse target file %s: %w", entry.Name(), err)
		}

		if len(file.Targets) > 0 {
			targets = append(targets, file.Targets...)
		} else {
			targets = append(targets, file.Target)
		}
	}

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })
	return targets, nil
}

// FindTarget returns the named target or an error listing what exists.
func FindTarget(targets []Target, name string) (Target, error) {
	for _, t := range targets {
		if t.Name == name {
			return t, nil
		}
	}
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.Name)
	}
	return Target{}, fmt.Errorf("unknown target %q (have: %s)", name, strings.Join(names, ", "))
}
