package app

import (
	"github.com/fieldvault/fieldvault/internal/database"
)

// DatabaseConfigFor translates the application configuration into the
// database layer's connection settings.
func DatabaseConfigFor(cfg *Config) database.Config {
	dbCfg := database.Config{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	}

	switch cfg.Database.Driver {
	case "postgres":
		dbCfg.Host = cfg.Database.Postgres.Host
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = cfg.Database.Postgres.Database
		dbCfg.User = cfg.Database.Postgres.Username
		dbCfg.Password = cfg.Database.Postgres.Password
	case "mysql":
		dbCfg.Host = cfg.Database.MySQL.Host
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = cfg.Database.MySQL.Database
		dbCfg.User = cfg.Database.MySQL.Username
		dbCfg.Password = cfg.Database.MySQL.Password
	}

	return dbCfg
}
