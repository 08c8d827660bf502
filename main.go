// tablewatch watches a MySQL database through its binary log and saves the
// accumulated table state as JSON snapshot files.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tablewatch/tablewatch/cmd/check"
	"github.com/tablewatch/tablewatch/cmd/migrate"
	"github.com/tablewatch/tablewatch/cmd/monitor"
	"github.com/tablewatch/tablewatch/cmd/restore"
	"github.com/tablewatch/tablewatch/cmd/seed"
)

const version = "0.1.0"

func main() {
	setupLogging()

	root := &cobra.Command{
		Use:           "tablewatch",
		Short:         "Capture database changes and save them to a file",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Use 'tablewatch monitor' to start monitoring database changes.")
			fmt.Fprintln(cmd.OutOrStdout(), "Run 'tablewatch --help' for more information.")
		},
	}

	root.AddCommand(
		monitor.NewMonitorCommand(),
		check.NewCheckCommand(),
		seed.NewSeedCommand(),
		migrate.NewMigrateCommand(),
		restore.NewRestoreCommand(),
	)

	if err := root.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func setupLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})

	level := logrus.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		parsed, err := logrus.ParseLevel(raw)
		if err == nil {
			level = parsed
		}
	}
	logrus.SetLevel(level)
}
