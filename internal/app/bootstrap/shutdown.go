// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown cleanly tears down the live components and DB connections.
// Order matters: the sweep worker and registry stop before the broker
// so nothing resubscribes while stream listeners are being torn down,
// and the Mongo client disconnects last.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if running.sweeper != nil {
		running.sweeper.Stop()
	}
	if running.registry != nil {
		running.registry.Close()
	}
	if running.broker != nil {
		running.broker.Close()
	}

	if deps.HuddleMongoClient != nil {
		logger.Info("disconnecting Huddle MongoDB client")
		if err := deps.HuddleMongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
