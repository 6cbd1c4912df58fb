// Package seed provisions a default admin account outside production so
// a fresh environment is usable without manual SQL.
package seed

import (
	"context"

	"github.com/shorelabs/textgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	Cfg config.Config
}

func Run(p Params) error {
	if p.Cfg.Environment == "production" {
		return nil
	}

	log := p.Log.Named("seed")
	ctx := context.Background()

	stmt := `INSERT INTO users (id, email, role)
		 VALUES (?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`
	if p.DB.Dialector.Name() == "mysql" {
		stmt = `INSERT IGNORE INTO users (id, email, role) VALUES (?, ?, ?)`
	}

	res := p.DB.WithContext(ctx).Exec(
		stmt,
		"admin",
		"admin@localhost",
		"admin",
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Info("seeded default admin user")
	}

	return nil
}

var Module = fx.Module("seed",
	fx.Invoke(Run),
)
