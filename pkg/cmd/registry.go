package cmd

import (
	"fmt"
	"log/slog"

	"github.com/nocturnelabs/vigil/pkg/config"
	"github.com/nocturnelabs/vigil/pkg/notification"
	"github.com/nocturnelabs/vigil/pkg/registry"
	"github.com/nocturnelabs/vigil/pkg/tasks/analyze"
	"github.com/nocturnelabs/vigil/pkg/tasks/enrich"
	"github.com/nocturnelabs/vigil/pkg/tasks/httpcall"
	"github.com/nocturnelabs/vigil/pkg/tasks/notify"
	"github.com/nocturnelabs/vigil/pkg/tasks/validate"
)

// NewRegistry builds a registry with the native executor set registered.
func NewRegistry(logger *slog.Logger, notifier *notification.Engine) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.RegisterExecutor(validate.NewFactory())
	reg.RegisterExecutor(enrich.NewFactory())
	reg.RegisterExecutor(analyze.NewFactory())
	reg.RegisterExecutor(httpcall.NewFactory())

	if notifier != nil {
		reg.RegisterExecutor(notify.NewFactory(notifier))
	}

	return reg
}

// ApplyDefinitions registers loaded definitions across the registry and the
// notification engine. Tasks first, then workflows, so step task references
// resolve.
func ApplyDefinitions(defs *config.Definitions, reg *registry.Registry, notifier *notification.Engine) error {
	for _, task := range defs.Tasks {
		if err := reg.Tasks().Register(task); err != nil {
			return fmt.Errorf("register task: %w", err)
		}
	}

	for _, workflow := range defs.Workflows {
		if err := reg.Workflows().Register(workflow); err != nil {
			return fmt.Errorf("register workflow: %w", err)
		}
	}

	if notifier == nil {
		return nil
	}

	for _, channel := range defs.Channels {
		if err := notifier.RegisterChannel(channel); err != nil {
			return fmt.Errorf("register channel: %w", err)
		}
	}

	for _, tmpl := range defs.Templates {
		if err := notifier.RegisterTemplate(tmpl); err != nil {
			return fmt.Errorf("register template: %w", err)
		}
	}

	for _, policy := range defs.Policies {
		if err := notifier.RegisterPolicy(policy); err != nil {
			return fmt.Errorf("register escalation policy: %w", err)
		}
	}

	for _, suppression := range defs.Suppressions {
		if _, err := notifier.CreateSuppression(suppression); err != nil {
			return fmt.Errorf("register suppression: %w", err)
		}
	}

	return nil
}
