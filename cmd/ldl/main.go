package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/loadline/loadline/internal/config"
	"github.com/loadline/loadline/internal/db"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ldl",
		Short: "Loadline — inbound carrier sales-call automation",
		Long:  "Loadline answers inbound carrier calls: verifies operating authority, matches loads, negotiates rates, and books freight.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newLoadsCmd())
	cmd.AddCommand(newCallsCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ldl %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// connectFromConfig loads the config file and opens the database.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
