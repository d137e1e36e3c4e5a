package tools

import (
	"context"

	"lingoloop/internal/config"
	"lingoloop/internal/logging"
)

// PolicyConfigFrom extracts the resolver's deployment-level input from a
// loaded config.
func PolicyConfigFrom(cfg *config.Config) PolicyConfig {
	return PolicyConfig{
		ProfileDefaults: cfg.ProfileModes(),
		UserOverrides:   cfg.UserModes(),
		Capabilities:    cfg.Policy.Capabilities,
		AllowedModels:   cfg.LLM.AllowedModels,
	}
}

// WatchPolicyConfig hot-reloads the config file into the dispatcher: each
// successful reload swaps the policy input, and the next dispatch re-resolves
// the effective policy from it. The returned watcher is already started;
// callers own its Stop.
func (d *Dispatcher) WatchPolicyConfig(ctx context.Context, path string) (*config.Watcher, error) {
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		d.SetPolicyConfig(PolicyConfigFrom(cfg))
		logging.For(logging.CategoryDispatch).Infow("policy config swapped", "path", path)
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
