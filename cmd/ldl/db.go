package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/loadline/loadline/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBSeedCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var (
		configPath string
		seedPath   string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Loadline database",
		Long:  "Creates the database schema and optionally seeds the load catalog.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath, seedPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	cmd.Flags().StringVar(&seedPath, "seed", "", "optional load seed file (YAML)")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath, seedPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if seedPath != "" {
		if err := seedCatalog(cmd, gormDB, seedPath); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "Loadline database initialized successfully.")
	return nil
}

func newDBSeedCmd() *cobra.Command {
	var (
		configPath string
		seedPath   string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the load catalog from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			return seedCatalog(cmd, gormDB, seedPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	cmd.Flags().StringVar(&seedPath, "seed", "seed/loads.yaml", "load seed file (YAML)")
	return cmd
}

func seedCatalog(cmd *cobra.Command, gormDB *gorm.DB, seedPath string) error {
	out := cmd.OutOrStdout()

	sf, err := db.LoadSeedFile(seedPath)
	if err != nil {
		return err
	}
	if err := db.SeedLoads(gormDB, sf, time.Now().UTC()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d loads from %s\n", len(sf.Loads), seedPath)
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and recreate all Loadline tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loadline.yaml", "path to Loadline config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, force bool) error {
	out := cmd.OutOrStdout()

	if !force {
		fmt.Fprint(out, "This will delete all loads and call records. Continue? [y/N] ")
		reader := bufio.NewReader(cmd.InOrStdin())
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	for _, m := range db.AllModels() {
		if err := gormDB.Migrator().DropTable(m); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	fmt.Fprintf(out, "Reset complete at %s\n", time.Now().Format(time.RFC3339))
	return nil
}
