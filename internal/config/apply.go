package config

import (
	"github.com/ctkgo/deviceaccess/internal/obslog"
	"github.com/ctkgo/deviceaccess/internal/obsmetrics"
	"github.com/ctkgo/deviceaccess/pkg/backend/shareddummy"
	"github.com/ctkgo/deviceaccess/pkg/backend/xdma"
)

// applyBackendTunables pushes cfg's per-backend-type settings into the
// package-level variables backend/shareddummy and backend/xdma read,
// and initializes logging and metrics collection. Keeping the backend
// settings as package variables (rather than threading a Config through
// every backend.Factory) matches the factories' fixed
// `func(address string, parameters map[string]string) (Backend, error)`
// signature, which leaves no room for an extra configuration argument.
func applyBackendTunables(cfg *Config) error {
	if err := obslog.Init(cfg.Logging); err != nil {
		return err
	}
	obsmetrics.Init(cfg.Metrics.Enabled)
	shareddummy.ShmRootDir = cfg.SharedDummyShmRoot
	xdma.HealthPollPeriod = cfg.XDMAPollInterval
	return nil
}
