// Package monitor implements the `tablewatch monitor` command: verify the
// server, inspect table schemas, tail the binlog, and save JSON snapshots.
package monitor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tablewatch/tablewatch/capture"
	"github.com/tablewatch/tablewatch/checkup"
	"github.com/tablewatch/tablewatch/config"
	"github.com/tablewatch/tablewatch/db"
	"github.com/tablewatch/tablewatch/inspect"
	"github.com/tablewatch/tablewatch/snapshot"
)

const (
	hostFlag      = "host"
	portFlag      = "port"
	userFlag      = "user"
	passwordFlag  = "password"
	databaseFlag  = "database"
	outputDirFlag = "output-dir"
	serverIDFlag  = "server-id"
	autosaveFlag  = "autosave"
)

var envDefaults = config.FromEnv()

var monitorFlags = map[string]cobraflags.Flag{
	hostFlag: &cobraflags.StringFlag{
		Name:  hostFlag,
		Value: envDefaults.Host,
		Usage: "Database host",
	},
	portFlag: &cobraflags.IntFlag{
		Name:  portFlag,
		Value: envDefaults.Port,
		Usage: "Database port",
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
		Usage: "Database name to monitor (required)",
	},
	outputDirFlag: &cobraflags.StringFlag{
		Name:  outputDirFlag,
		Value: envDefaults.OutputDir,
		Usage: "Output directory for JSON snapshot files",
	},
	serverIDFlag: &cobraflags.IntFlag{
		Name:  serverIDFlag,
		Value: envDefaults.ServerID,
		Usage: "MySQL replication server ID",
	},
	autosaveFlag: &cobraflags.StringFlag{
		Name:  autosaveFlag,
		Value: envDefaults.Autosave,
		Usage: "Cron expression for periodic snapshots, e.g. '@every 30s' (empty: save on stop only)",
	},
}

// NewMonitorCommand returns the monitor command.
func NewMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start monitoring database changes",
		Long: `Tail the MySQL binary log and fold row events into per-table JSON snapshots.

The server must have binary logging enabled in ROW format and the connecting
user needs REPLICATION SLAVE and REPLICATION CLIENT privileges; run
'tablewatch check' to verify. Snapshots are written on shutdown (Ctrl+C) and,
with --autosave, on a schedule.`,
		RunE: runMonitor,
	}
	cobraflags.RegisterMap(cmd, monitorFlags)
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	logger := logrus.StandardLogger()

	database := monitorFlags[databaseFlag].GetString()
	if database == "" {
		return fmt.Errorf("--database is required")
	}

	opts := db.DriverOptions{
		Host:     monitorFlags[hostFlag].GetString(),
		Port:     monitorFlags[portFlag].GetInt(),
		User:     monitorFlags[userFlag].GetString(),
		Password: monitorFlags[passwordFlag].GetString(),
		Database: database,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Admin connection: checkup, schema inspection, binlog position.
	// Retried so the monitor can start alongside the database.
	var admin *db.DB
	err := db.WithRetry(ctx, db.RetryConfig{MaxAttempts: 5, Delay: 2 * time.Second}, func() error {
		var openErr error
		admin, openErr = db.OpenWithDriver("mysql", opts, db.Config{
			MaxOpenConns:   2,
			DefaultTimeout: 10 * time.Second,
			Hooks:          []db.Hook{db.NewLogHook(db.LogHookConfig{Logger: logger})},
		})
		return openErr
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer admin.Close()

	findings, err := checkup.Run(ctx, admin)
	if err != nil {
		return err
	}
	logFindings(logger, findings)
	if !checkup.AllOK(findings) {
		return fmt.Errorf("server configuration check failed, fix the issues above before monitoring")
	}

	meta, err := loadTableMeta(ctx, admin, database)
	if err != nil {
		return err
	}
	logger.WithField("tables", len(meta)).Info("table schemas loaded")

	pos, err := capture.CurrentPosition(ctx, admin)
	if err != nil {
		return err
	}

	writer, err := snapshot.NewWriter(monitorFlags[outputDirFlag].GetString(), logger)
	if err != nil {
		return err
	}

	mon := capture.NewMonitor(capture.Config{
		Host:     opts.Host,
		Port:     opts.Port,
		User:     opts.User,
		Password: opts.Password,
		Database: database,
		ServerID: uint32(monitorFlags[serverIDFlag].GetInt()),
	}, meta, logger)

	if spec := monitorFlags[autosaveFlag].GetString(); spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() {
			if err := writer.WriteAll(mon.Snapshot()); err != nil {
				logger.WithError(err).Error("autosave failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid --autosave expression %q: %w", spec, err)
		}
		c.Start()
		defer c.Stop()
		logger.WithField("schedule", spec).Info("snapshot autosave enabled")
	}

	runErr := mon.Run(ctx, pos)

	logger.Info("saving JSON snapshots")
	if err := writer.WriteAll(mon.Snapshot()); err != nil {
		if runErr == nil {
			return err
		}
		logger.WithError(err).Error("final snapshot failed")
	}
	return runErr
}

func loadTableMeta(ctx context.Context, admin *db.DB, database string) (map[string]capture.TableMeta, error) {
	schemas, err := inspect.New(admin, database).Tables(ctx)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]capture.TableMeta, len(schemas))
	for _, ts := range schemas {
		meta[ts.Name] = capture.TableMeta{Columns: ts.Columns, PrimaryKey: ts.PrimaryKey}
	}
	return meta, nil
}

func logFindings(logger logrus.FieldLogger, findings []checkup.Finding) {
	for _, f := range findings {
		entry := logger.WithField("check", f.Name)
		if f.OK {
			entry.Info(f.Detail)
			continue
		}
		entry.Error(f.Detail)
		for _, hint := range f.Hints {
			entry.Info(hint)
		}
	}
}
