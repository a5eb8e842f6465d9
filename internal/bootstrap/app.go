package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"goalsync/internal/bootstrap/config"
	"goalsync/internal/bootstrap/logging"
	"goalsync/internal/errs"
	"goalsync/internal/infrastructure/persistence/schema"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := schema.Migrate(ctx, a.DB); err != nil {
		return err
	}

	logging.Info(logCtx, "schema migration completed", slog.String("schema_version", schema.Version))
	return nil
}

// SchemaVersion reports the stamped schema version, empty before init-db.
func (a *App) SchemaVersion(ctx context.Context) (string, error) {
	version, _, err := schema.CurrentVersion(ctx, a.DB)
	return version, err
}
