package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nocturnelabs/vigil/pkg/models"
)

// Load reads definitions from a YAML file, or from every *.yaml / *.yml file
// in a directory. Documents are merged in filename order.
func Load(path string) (*Definitions, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("definitions path: %w", err)
	}

	files := []string{path}

	if info.IsDir() {
		files, err = listYAMLFiles(path)
		if err != nil {
			return nil, err
		}

		if len(files) == 0 {
			return nil, fmt.Errorf("no YAML definitions found in %s", path)
		}
	}

	merged := &rawDefinitions{}

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read definitions: %w", err)
		}

		var raw rawDefinitions
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(file), err)
		}

		merged.Tasks = append(merged.Tasks, raw.Tasks...)
		merged.Workflows = append(merged.Workflows, raw.Workflows...)
		merged.Rules = append(merged.Rules, raw.Rules...)
		merged.Channels = append(merged.Channels, raw.Channels...)
		merged.Templates = append(merged.Templates, raw.Templates...)
		merged.Policies = append(merged.Policies, raw.Policies...)
		merged.Suppressions = append(merged.Suppressions, raw.Suppressions...)
	}

	return convert(merged)
}

func listYAMLFiles(dir string) ([]string, error) {
	var files []string

	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("list definitions: %w", err)
		}

		files = append(files, matches...)
	}

	sort.Strings(files)

	return files, nil
}

func convert(raw *rawDefinitions) (*Definitions, error) {
	defs := &Definitions{
		Templates:    raw.Templates,
		Suppressions: raw.Suppressions,
	}

	for _, task := range raw.Tasks {
		defs.Tasks = append(defs.Tasks, task.convert())
	}

	for _, workflow := range raw.Workflows {
		defs.Workflows = append(defs.Workflows, workflow.convert())
	}

	for _, rule := range raw.Rules {
		defs.Rules = append(defs.Rules, rule.convert())
	}

	for _, channel := range raw.Channels {
		defs.Channels = append(defs.Channels, channel.convert())
	}

	for _, policy := range raw.Policies {
		defs.Policies = append(defs.Policies, policy.convert())
	}

	if err := validate(defs); err != nil {
		return nil, err
	}

	return defs, nil
}

// validate closes the string enums at the configuration boundary so unknown
// values fail loading instead of silently defaulting.
func validate(defs *Definitions) error {
	v := validator.New()

	for _, task := range defs.Tasks {
		if err := v.Struct(task); err != nil {
			return fmt.Errorf("task %q: %w", task.ID, err)
		}

		if _, err := models.ParseTaskCategory(string(task.Category)); err != nil {
			return fmt.Errorf("task %q: %w", task.ID, err)
		}

		if _, err := models.ParseAutomationLevel(string(task.AutomationLevel)); err != nil {
			return fmt.Errorf("task %q: %w", task.ID, err)
		}
	}

	for _, workflow := range defs.Workflows {
		if err := v.Struct(workflow); err != nil {
			return fmt.Errorf("workflow %q: %w", workflow.ID, err)
		}

		if _, err := models.ParseWorkflowKind(string(workflow.Kind)); err != nil {
			return fmt.Errorf("workflow %q: %w", workflow.ID, err)
		}

		for _, step := range workflow.Steps {
			if step.ErrorHandling.OnFailure != "" {
				if _, err := models.ParseOnFailure(string(step.ErrorHandling.OnFailure)); err != nil {
					return fmt.Errorf("workflow %q step %q: %w", workflow.ID, step.ID, err)
				}
			}

			for _, cond := range step.Conditions {
				if _, err := models.ParseOperator(string(cond.Operator)); err != nil {
					return fmt.Errorf("workflow %q step %q: %w", workflow.ID, step.ID, err)
				}
			}
		}
	}

	for _, rule := range defs.Rules {
		if err := v.Struct(rule); err != nil {
			return fmt.Errorf("rule %q: %w", rule.ID, err)
		}

		for i, action := range rule.Actions {
			if _, err := models.ParseActionKind(string(action.Kind)); err != nil {
				return fmt.Errorf("rule %q action %d: %w", rule.ID, i, err)
			}
		}
	}

	for _, channel := range defs.Channels {
		if err := v.Struct(channel); err != nil {
			return fmt.Errorf("channel %q: %w", channel.ID, err)
		}

		if _, err := models.ParseChannelType(string(channel.Type)); err != nil {
			return fmt.Errorf("channel %q: %w", channel.ID, err)
		}
	}

	for _, tmpl := range defs.Templates {
		if err := v.Struct(tmpl); err != nil {
			return fmt.Errorf("template %q: %w", tmpl.ID, err)
		}
	}

	for _, policy := range defs.Policies {
		if err := v.Struct(policy); err != nil {
			return fmt.Errorf("escalation policy %q: %w", policy.ID, err)
		}
	}

	for _, suppression := range defs.Suppressions {
		if err := v.Struct(suppression); err != nil {
			return fmt.Errorf("suppression %q: %w", suppression.ID, err)
		}
	}

	return nil
}
