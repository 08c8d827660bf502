// Package check implements `tablewatch check`: verify that the MySQL server
// is configured for binlog monitoring before any capture is attempted.
package check

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tablewatch/tablewatch/checkup"
	"github.com/tablewatch/tablewatch/config"
	"github.com/tablewatch/tablewatch/db"
)

const (
	hostFlag     = "host"
	portFlag     = "port"
	userFlag     = "user"
	passwordFlag = "password"
	databaseFlag = "database"
)

var envDefaults = config.FromEnv()

var checkFlags = map[string]cobraflags.Flag{
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
		Usage: "Database name (required)",
	},
}

// NewCheckCommand returns the check command.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the server configuration required for monitoring",
		Long: `Check that binary logging is enabled, binlog_format is ROW, and the
connecting user holds the REPLICATION SLAVE and REPLICATION CLIENT
privileges. Each failed check is reported with the SQL needed to fix it.`,
		RunE: runCheck,
	}
	cobraflags.RegisterMap(cmd, checkFlags)
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	logger := logrus.StandardLogger()

	database := checkFlags[databaseFlag].GetString()
	if database == "" {
		return fmt.Errorf("--database is required")
	}

	d, err := db.OpenWithDriver("mysql", db.DriverOptions{
		Host:     checkFlags[hostFlag].GetString(),
		Port:     checkFlags[portFlag].GetInt(),
		User:     checkFlags[userFlag].GetString(),
		Password: checkFlags[passwordFlag].GetString(),
		Database: database,
	}, db.Config{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer d.Close()

	findings, err := checkup.Run(cmd.Context(), d)
	if err != nil {
		return err
	}

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

	if !checkup.AllOK(findings) {
		return fmt.Errorf("server is not ready for monitoring")
	}
	logger.Info("server is ready for monitoring")
	return nil
}
