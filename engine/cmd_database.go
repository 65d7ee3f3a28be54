package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/hostops/hops/engine/database"
	"github.com/hostops/hops/engine/database/dbmigrate"
	"github.com/hostops/hops/sdk"
)

func init() {
	databaseCmd.AddCommand(databaseUpgradeCmd)
	databaseCmd.AddCommand(databaseDowngradeCmd)
	databaseCmd.AddCommand(databaseStatusCmd)

	setCommonFlags := func(cmd *cobra.Command) {
		pflags := cmd.Flags()
		pflags.StringVarP(&dbConfig.User, "db-user", "", "hops", "DB User")
		pflags.StringVarP(&dbConfig.Role, "db-role", "", "", "DB Role")
		pflags.StringVarP(&dbConfig.Password, "db-password", "", "", "DB Password")
		pflags.StringVarP(&dbConfig.Name, "db-name", "", "hops", "DB Name")
		pflags.StringVarP(&dbConfig.Schema, "db-schema", "", "public", "DB Schema")
		pflags.StringVarP(&dbConfig.Host, "db-host", "", "localhost", "DB Host")
		pflags.IntVarP(&dbConfig.Port, "db-port", "", 5432, "DB Port")
		pflags.StringVarP(&sqlMigrateDir, "migrate-dir", "", "./engine/sql/api", "hops SQL Migration directory")
		pflags.StringVarP(&dbConfig.SSLMode, "db-sslmode", "", "require", "DB SSL Mode: require (default), verify-full, or disable")
		pflags.IntVarP(&dbConfig.MaxConn, "db-maxconn", "", 20, "DB Max connection")
		pflags.IntVarP(&dbConfig.Timeout, "db-timeout", "", 3000, "Statement timeout value in milliseconds")
		pflags.IntVarP(&dbConfig.ConnectTimeout, "db-connect-timeout", "", 10, "Maximum wait for connection, in seconds")
	}

	setCommonFlags(databaseUpgradeCmd)
	databaseUpgradeCmd.Flags().BoolVarP(&sqlMigrateDryRun, "dry-run", "", false, "Dry run upgrade")
	databaseUpgradeCmd.Flags().IntVarP(&sqlMigrateLimitUp, "limit", "", 0, "Max number of migrations to apply (0 = unlimited)")

	setCommonFlags(databaseDowngradeCmd)
	databaseDowngradeCmd.Flags().BoolVarP(&sqlMigrateDryRun, "dry-run", "", false, "Dry run downgrade")
	databaseDowngradeCmd.Flags().IntVarP(&sqlMigrateLimitDown, "limit", "", 1, "Max number of migrations to apply (0 = unlimited)")

	setCommonFlags(databaseStatusCmd)
}

var (
	sqlMigrateDir       string
	sqlMigrateDryRun    bool
	sqlMigrateLimitUp   int
	sqlMigrateLimitDown int
	dbConfig            database.DBConfiguration
)

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage hops database",
	Long:  "Manage hops database",
}

var databaseUpgradeCmd = &cobra.Command{
	Use:     "upgrade",
	Short:   "Upgrade schema",
	Long:    `Migrates the database to the most recent version available.`,
	Example: `engine database upgrade --db-password=your-password --db-sslmode=disable --db-name=hops --db-schema=public --migrate-dir=./engine/sql/api`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := applyMigrations(migrate.Up, sqlMigrateDryRun, sqlMigrateLimitUp); err != nil {
			sdk.Exit("Error: %+v\n", err)
		}
	},
}

var databaseDowngradeCmd = &cobra.Command{
	Use:   "downgrade",
	Short: "Downgrade schema",
	Long:  "Undo a database migration.",
	Run: func(cmd *cobra.Command, args []string) {
		if err := applyMigrations(migrate.Down, sqlMigrateDryRun, sqlMigrateLimitDown); err != nil {
			sdk.Exit("Error: %+v\n", err)
		}
	},
}

var databaseStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current migration status",
	Run: func(cmd *cobra.Command, args []string) {
		factory, err := database.Init(context.TODO(), dbConfig)
		if err != nil {
			sdk.Exit("Error: %v\n", err)
		}
		defer factory.Close() // nolint

		statuses, err := dbmigrate.Get(factory.DB, sqlMigrateDir)
		if err != nil {
			sdk.Exit("Error: %v\n", err)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Migration", "Applied"})
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
		table.SetColWidth(60)
		for _, s := range statuses {
			applied := "no"
			if s.Migrated && s.AppliedAt != nil {
				applied = s.AppliedAt.String()
			}
			table.Append([]string{s.ID, applied})
		}
		table.Render()
	},
}

// applyMigrations applies migration (or not depending on dryrun flag)
func applyMigrations(dir migrate.MigrationDirection, dryrun bool, limit int) error {
	factory, err := database.Init(context.TODO(), dbConfig)
	if err != nil {
		return err
	}
	defer factory.Close() // nolint

	migrations, err := dbmigrate.Do(factory.DB, sqlMigrateDir, dir, dryrun, limit)
	if err != nil {
		return err
	}

	if dryrun {
		for _, m := range migrations {
			printMigration(m, dir)
		}
	}
	return nil
}

func printMigration(m *migrate.PlannedMigration, dir migrate.MigrationDirection) {
	queries := m.Up
	direction := "up"
	if dir == migrate.Down {
		queries = m.Down
		direction = "down"
	}
	fmt.Printf("==> Would apply migration %s (%s)\n", m.Id, direction)
	for _, q := range queries {
		fmt.Println(q)
	}
}
