package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/edavis10/issuekit/internal/config"
	"github.com/edavis10/issuekit/internal/seed"
	"github.com/edavis10/issuekit/internal/storage/factory"
	"github.com/edavis10/issuekit/internal/telemetry"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the tracker database and seed reference data",
	Long: `Create the tracker database, install default trackers, statuses,
priorities and roles, and set up an initial project and admin account.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir := dataDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
			cfg.Set(config.KeyBackend, backend)
		}
		if dsn, _ := cmd.Flags().GetString("dsn"); dsn != "" {
			cfg.Set(config.KeyDSN, dsn)
		}

		login, _ := cmd.Flags().GetString("admin")
		if login == "" {
			if u, err := user.Current(); err == nil {
				login = u.Username
			} else {
				login = "admin"
			}
		}
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = login
		}
		mail, _ := cmd.Flags().GetString("mail")
		projectName, _ := cmd.Flags().GetString("project")
		identifier, _ := cmd.Flags().GetString("identifier")

		store, err := factory.Open(ctx, cfg.Backend(), cfg.DSN())
		if err != nil {
			return fmt.Errorf("open %s storage: %w", cfg.Backend(), err)
		}
		defer store.Close()

		result, err := seed.Install(ctx, telemetry.WrapStore(store), seed.Defaults(), seed.Options{
			ProjectName:       projectName,
			ProjectIdentifier: identifier,
			AdminLogin:        login,
			AdminName:         name,
			AdminMail:         mail,
		})
		if err != nil {
			return fmt.Errorf("seed database: %w", err)
		}

		cfg.Set(config.KeyLogin, login)
		if err := cfg.Save(); err != nil {
			return err
		}

		fmt.Printf("Initialized tracker in %s\n", dir)
		fmt.Printf("  project: %s (#%d)\n", result.Project.Name, result.Project.ID)
		fmt.Printf("  admin:   %s (#%d)\n", result.Admin.Login, result.Admin.ID)
		return nil
	},
}

func init() {
	initCmd.Flags().String("backend", "", "storage backend: sqlite or mysql (default sqlite)")
	initCmd.Flags().String("dsn", "", "storage DSN (file path for sqlite, driver DSN for mysql)")
	initCmd.Flags().String("project", "Main", "initial project name")
	initCmd.Flags().String("identifier", "main", "initial project identifier")
	initCmd.Flags().String("admin", "", "admin login (default current OS user)")
	initCmd.Flags().String("name", "", "admin display name")
	initCmd.Flags().String("mail", "", "admin mail address")
}
