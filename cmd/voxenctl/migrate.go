package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/noah-isme/voxen-api/migrations"
)

var gooseRunFunc = goose.RunContext // mockable

var migrateCommands = map[string]int{
	"up":      0,
	"down":    0,
	"redo":    0,
	"reset":   0,
	"status":  0,
	"version": 0,
	"up-to":   1,
	"down-to": 1,
}

func newMigrateCmd(cli *commandLine) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|redo|reset|status|version|up-to V|down-to V>",
		Short: "Apply or inspect database schema migrations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateMigrateArgs(args); err != nil {
				return err
			}
			db, err := cli.database(cmd.Context())
			if err != nil {
				return err
			}
			return cli.migrate(cmd.Context(), db.DB, args)
		},
	}
}

func validateMigrateArgs(args []string) error {
	want, ok := migrateCommands[args[0]]
	if !ok {
		return fmt.Errorf("%q: no such migrate command", args[0])
	}
	if len(args)-1 != want {
		return fmt.Errorf("%s expects %d argument(s)", args[0], want)
	}
	if want == 1 {
		if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
			return fmt.Errorf("version must be a number (got %q)", args[1])
		}
	}
	return nil
}

func (cli *commandLine) migrate(ctx context.Context, db *sql.DB, args []string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	dir := cli.cfg.Migrations.Dir
	if dir == "" {
		goose.SetBaseFS(migrations.FS)
		defer goose.SetBaseFS(nil)
		dir = "."
	}
	cli.logger.Sugar().Infow("running migrations", "command", args[0], "dir", dir)
	return gooseRunFunc(ctx, args[0], db, dir, args[1:]...)
}
