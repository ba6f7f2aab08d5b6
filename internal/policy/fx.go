package policy

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/premia/internal/config"
)

// NewRegistry picks the HTTP registry when a policy service is configured
// and falls back to the permissive static registry otherwise.
func NewRegistry(cfg config.Config, log *zap.Logger) Registry {
	if cfg.Policy.BaseURL != "" {
		return NewClient(cfg.Policy.BaseURL, cfg.Policy.Timeout, log)
	}
	return NewPermissiveRegistry()
}

var Module = fx.Module("policy",
	fx.Provide(NewRegistry),
)
