package main

import (
	"github.com/spf13/cobra"
	"stormlightlabs.org/hoopscore/cmd"
	"stormlightlabs.org/hoopscore/internal/echo"
)

// RootCmd is the root command for the hoopscore CLI
var RootCmd = &cobra.Command{
	Use:   "hoopscore",
	Short: "Basketball analytics ETL and query toolkit",
	Long: echo.HeaderStyle().Render("hoopscore") + "\n\n" +
		"Ingests box-score-grain basketball data into Postgres, validates it,\n" +
		"and serves a leaderboards/spans/splits/streaks/versus query engine\n" +
		"over the result.",
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Path to config file (defaults to conf.toml)")
	RootCmd.AddCommand(cmd.DbCmd())
	RootCmd.AddCommand(cmd.IngestCmd())
	RootCmd.AddCommand(cmd.QueriesCmd())
	RootCmd.AddCommand(cmd.CacheCmd())
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		echo.Error(err.Error())
	}
}
