package main

import (
	"context"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/voxen-api/pkg/config"
	"github.com/noah-isme/voxen-api/pkg/database"
	"github.com/noah-isme/voxen-api/pkg/logger"
)

// commandLine holds the lazily initialised dependencies shared by subcommands.
type commandLine struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	out    io.Writer
	in     io.Reader

	loadConfig func() (*config.Config, error)
	openDB     func(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error)
}

func newCommandLine() *commandLine {
	return &commandLine{
		out:        os.Stdout,
		in:         os.Stdin,
		loadConfig: config.Load,
		openDB:     database.NewPostgres,
	}
}

func newRootCmd(cli *commandLine) *cobra.Command {
	root := &cobra.Command{
		Use:           "voxenctl",
		Short:         "Administrative tasks for the Voxen API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return cli.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			cli.close()
		},
	}
	root.SetOut(cli.out)
	root.AddCommand(newMigrateCmd(cli), newNotifyDueCmd(cli), newCreateAdminCmd(cli))
	return root
}

func (cli *commandLine) setup() error {
	if cli.cfg == nil {
		cfg, err := cli.loadConfig()
		if err != nil {
			return err
		}
		cli.cfg = cfg
	}
	if cli.logger == nil {
		logr, err := logger.New(cli.cfg)
		if err != nil {
			return err
		}
		cli.logger = logr
	}
	return nil
}

func (cli *commandLine) database(ctx context.Context) (*sqlx.DB, error) {
	if cli.db != nil {
		return cli.db, nil
	}
	db, err := cli.openDB(ctx, cli.cfg.Database)
	if err != nil {
		return nil, err
	}
	cli.db = db
	return db, nil
}

func (cli *commandLine) close() {
	if cli.db != nil {
		_ = cli.db.Close()
	}
	if cli.logger != nil {
		_ = cli.logger.Sync()
	}
}
