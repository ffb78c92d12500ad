package main

import (
	"context"
	"errors"
	"io/fs"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/safespora/safespora-admin/internal/admins"
	"github.com/safespora/safespora-admin/internal/app"
	"github.com/safespora/safespora-admin/internal/audit"
	"github.com/safespora/safespora-admin/internal/identity"
	"github.com/safespora/safespora-admin/internal/mail"
	"github.com/safespora/safespora-admin/internal/platform/db"
	"github.com/safespora/safespora-admin/internal/rbac"
	"github.com/safespora/safespora-admin/jobs"
	"github.com/safespora/safespora-admin/web"
)

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(n int) error
	Version() (version uint, dirty bool, err error)
	Close() error
}

// Bootstrapper creates the first super administrator.
type Bootstrapper interface {
	BootstrapSuper(ctx context.Context, email, fullName string) (*rbac.Principal, string, error)
}

// JobQueue is the operator view of the asynq queue.
type JobQueue interface {
	SendTestMail(ctx context.Context, to string) (*asynq.TaskInfo, error)
	InspectQueues(ctx context.Context) ([]jobs.QueueStats, error)
	Close() error
}

// deps builds the collaborators of each command once configuration is known.
type deps struct {
	loadConfig   func() (*app.Config, error)
	migrator     func(cfg *app.Config) (Migrator, error)
	bootstrapper func(ctx context.Context, cfg *app.Config) (Bootstrapper, func(), error)
	queue        func(cfg *app.Config) (JobQueue, error)
}

func defaultDeps() deps {
	return deps{
		loadConfig: app.LoadConfig,
		migrator: func(cfg *app.Config) (Migrator, error) {
			m, err := db.NewMigrator(web.Migrations(), cfg.PGDSN)
			if err != nil {
				return nil, err
			}
			return migrateRunner{m: m}, nil
		},
		bootstrapper: func(ctx context.Context, cfg *app.Config) (Bootstrapper, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2, ApplicationName: "safesporactl"})
			if err != nil {
				return nil, nil, err
			}
			svc := admins.NewService(admins.Config{
				Repo:       admins.NewRepository(pool),
				Identities: identity.NewProvider(pool),
				Audit:      audit.NewRecorder(pool),
				Logger:     app.NewLogger(cfg),
				InviteTTL:  cfg.InviteTTL,
			})
			return svc, pool.Close, nil
		},
		queue: func(cfg *app.Config) (JobQueue, error) {
			templates, err := mail.NewTemplates(cfg.PortalURL)
			if err != nil {
				return nil, err
			}
			return NewJobsCLI(cfg.Redis().Queue(), templates)
		},
	}
}

func newRootCmd(d deps) *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "safesporactl",
		Short:         "Operate the SafeSpora admin back office",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading configuration (default .env when present)")

	root.AddCommand(newMigrateCmd(d), newAdminCmd(d), newJobsCmd(d))
	return root
}

// loadEnv reads path, or ./.env when path is empty. A missing default file is
// not an error; a missing explicit file is.
func loadEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func requireSubcommand(cmd *cobra.Command, _ []string) error {
	_ = cmd.Help()
	return errors.New("a subcommand is required")
}
