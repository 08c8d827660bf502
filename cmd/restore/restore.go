// Package restore implements `tablewatch restore`: load JSON snapshot files
// produced by the monitor back into a SQL database.
package restore

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tablewatch/tablewatch/config"
	"github.com/tablewatch/tablewatch/db"
	"github.com/tablewatch/tablewatch/snapshot"
)

const (
	dirFlag      = "dir"
	driverFlag   = "driver"
	hostFlag     = "host"
	portFlag     = "port"
	userFlag     = "user"
	passwordFlag = "password"
	databaseFlag = "database"
)

var envDefaults = config.FromEnv()

var restoreFlags = map[string]cobraflags.Flag{
	dirFlag: &cobraflags.StringFlag{
		Name:  dirFlag,
		Value: envDefaults.OutputDir,
		Usage: "Directory holding <table>.json snapshot files",
	},
	driverFlag: &cobraflags.StringFlag{
		Name:  driverFlag,
		Value: "mysql",
		Usage: "Target driver: mysql, postgres, or sqlite3",
	},
	hostFlag: &cobraflags.StringFlag{
		Name:  hostFlag,
		Value: envDefaults.Host,
		Usage: "Database host",
	},
	portFlag: &cobraflags.IntFlag{
		Name:  portFlag,
		Value: 0,
		Usage: "Database port (0: driver default)",
	},
	userFlag: &cobraflags.StringFlag{
		Name:  userFlag,
		Value: envDefaults.User,
		Usage: "Database user",
	},
	passwordFlag: &cobraflags.StringFlag{
		Name:  passwordFlag,
		Value: envDefaults.Password,
		Usage: "Database password (or TABLEWATCH_DB_PASSWORD)",
	},
	databaseFlag: &cobraflags.StringFlag{
		Name:  databaseFlag,
		Value: envDefaults.Database,
		Usage: "Database name, or file path for sqlite3 (required)",
	},
}

// NewRestoreCommand returns the restore command.
func NewRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Insert saved JSON snapshots into a database",
		Long: `Read every <table>.json file in the snapshot directory and insert its rows
into the target database, one transaction per table. The target tables must
already exist; rows that collide with existing keys fail with the engine's
duplicate-key error and roll that table back.`,
		RunE: runRestore,
	}
	cobraflags.RegisterMap(cmd, restoreFlags)
	return cmd
}

func runRestore(cmd *cobra.Command, _ []string) error {
	logger := logrus.StandardLogger()

	database := restoreFlags[databaseFlag].GetString()
	if database == "" {
		return fmt.Errorf("--database is required")
	}

	d, err := db.OpenWithDriver(restoreFlags[driverFlag].GetString(), db.DriverOptions{
		Host:     restoreFlags[hostFlag].GetString(),
		Port:     restoreFlags[portFlag].GetInt(),
		User:     restoreFlags[userFlag].GetString(),
		Password: restoreFlags[passwordFlag].GetString(),
		Database: database,
	}, db.Config{
		MaxOpenConns: 2,
		Hooks:        []db.Hook{db.NewLogHook(db.LogHookConfig{Logger: logger})},
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer d.Close()

	res, err := snapshot.Restore(cmd.Context(), d, restoreFlags[dirFlag].GetString())
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"tables": res.Tables,
		"rows":   res.Rows,
	}).Info("restore complete")
	return nil
}
