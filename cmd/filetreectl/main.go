package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"filetree/internal/config"
	"filetree/internal/domain/models"
	"filetree/internal/repository/postgres"
	"filetree/internal/repository/postgres/migrations"
	postgresStructure "filetree/internal/repository/postgres/structure"
	"filetree/internal/seed"
	"filetree/internal/service/access"
	"filetree/internal/service/structure"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wiring shared by every command. The caller must defer app.Close().
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

func newApp(ctx context.Context) (*app, error) {
	_ = godotenv.Load()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	logger := config.NewLogger(cfg, os.Stderr)

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &app{
		cfg:    cfg,
		pool:   pool,
		tables: postgres.NewTableNames(cfg.TablePrefix),
		logger: logger,
	}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func (a *app) migrator() (*migrations.Migrator, func() error) {
	return migrations.NewForPool(a.pool, a.tables.Prefix, a.tables.Migrations)
}

// repoConfig reads the schema version so repositories match the database
func (a *app) repoConfig() (*postgres.RepositoryConfig, error) {
	m, closeDB := a.migrator()
	defer closeDB()

	status, err := m.Status()
	if err != nil {
		return nil, err
	}
	if err := status.Servable(); err != nil {
		return nil, err
	}

	return &postgres.RepositoryConfig{
		Pool:   a.pool,
		Tables: a.tables,
		Schema: &postgres.SchemaCapabilities{OwnerColumn: migrations.HasOwnerColumn(status.Version)},
		Logger: a.logger,
	}, nil
}

var rootCmd = &cobra.Command{
	Use:          "filetreectl",
	Short:        "Administer the filetree database",
	SilenceUsage: true,
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, closeDB := a.migrator()
		defer closeDB()

		if err := m.Up(); err != nil {
			return err
		}
		status, err := m.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %d (prefix %q)\n", status.Version, a.tables.Prefix)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		m, closeDB := a.migrator()
		defer closeDB()

		status, err := m.Status()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Prefix:       %q\n", a.tables.Prefix)
		fmt.Fprintf(out, "Version:      %d\n", status.Version)
		fmt.Fprintf(out, "Latest:       %d\n", status.Latest)
		fmt.Fprintf(out, "Dirty:        %t\n", status.Dirty)
		fmt.Fprintf(out, "Owner column: %t\n", migrations.HasOwnerColumn(status.Version))
		if err := status.Servable(); err != nil {
			fmt.Fprintf(out, "Servable:     no (%v)\n", err)
		} else {
			fmt.Fprintf(out, "Servable:     yes\n")
		}
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load users, nodes and grants from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fixture, err := seed.LoadFile(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.cfg.Environment == "prod" {
			return fmt.Errorf("refusing to seed the prod environment")
		}

		rc, err := a.repoConfig()
		if err != nil {
			return err
		}

		seeder := seed.NewSeeder(
			postgres.NewUserRepository(rc),
			postgresStructure.NewNodeRepository(rc),
			postgresStructure.NewGrantRepository(rc),
			postgres.NewTransactionManager(a.pool, a.logger),
			a.logger,
		)
		result, err := seeder.Apply(cmd.Context(), fixture)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d users, %d nodes, %d grants\n", result.Users, result.Nodes, result.Grants)
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the structure, optionally as seen by one user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rc, err := a.repoConfig()
		if err != nil {
			return err
		}

		nodeRepo := postgresStructure.NewNodeRepository(rc)
		grantRepo := postgresStructure.NewGrantRepository(rc)
		resolver := access.NewResolver(nodeRepo, grantRepo, postgres.NewSnapshotTransactionManager(a.pool, a.logger), a.logger)
		svc := structure.NewStructureService(nodeRepo, resolver, nil, structure.Options{
			IncludeAncestors: a.cfg.TreeIncludeAncestors,
		}, a.logger)

		var requester *models.Requester
		if userID, _ := cmd.Flags().GetString("user"); userID != "" {
			requester = &models.Requester{UserID: userID}
		}

		tree, err := svc.GetTree(cmd.Context(), requester)
		if err != nil {
			return err
		}
		if len(tree) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), structure.RenderTree(tree))
		return nil
	},
}

var grantsCmd = &cobra.Command{
	Use:   "grants <folder-id>",
	Short: "List the grants on a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rc, err := a.repoConfig()
		if err != nil {
			return err
		}

		nodeRepo := postgresStructure.NewNodeRepository(rc)
		grantRepo := postgresStructure.NewGrantRepository(rc)
		resolver := access.NewResolver(nodeRepo, grantRepo, nil, a.logger)
		svc := structure.NewPermissionService(nodeRepo, grantRepo, postgres.NewUserRepository(rc), resolver, a.logger)

		grants, err := svc.ListForFolder(cmd.Context(), args[0], nil)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Grant", "User", "Email", "View", "Edit", "Delete", "Create", "Upload", "Updated"})
		for _, g := range grants {
			table.Append([]string{
				g.ID, g.UserName, g.UserEmail,
				yesNo(g.CanView), yesNo(g.CanEdit), yesNo(g.CanDelete), yesNo(g.CanCreate), yesNo(g.CanUpload),
				g.UpdatedAt.Format("2006-01-02 15:04"),
			})
		}
		table.Render()
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the user directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rc, err := a.repoConfig()
		if err != nil {
			return err
		}

		users, err := postgres.NewUserRepository(rc).List(cmd.Context())
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"ID", "Name", "Email", "Created"})
		for _, u := range users {
			table.Append([]string{u.ID, u.Name, u.Email, u.CreatedAt.Format("2006-01-02 15:04")})
		}
		table.Render()
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	treeCmd.Flags().StringP("user", "u", "", "Show the tree as seen by this user id")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(grantsCmd)
	rootCmd.AddCommand(usersCmd)
}
