package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/noah-isme/voxen-api/internal/models"
	"github.com/noah-isme/voxen-api/internal/repository"
	"github.com/noah-isme/voxen-api/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	newAdminFunc     = buildAdminCreator // mockable
)

type adminCreator interface {
	CreateAdmin(ctx context.Context, req models.CreateAdminRequest) (*models.UserInfo, error)
}

func newCreateAdminCmd(cli *commandLine) *cobra.Command {
	var (
		email         string
		fullName      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := cli.readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}
			creator, err := newAdminFunc(cmd.Context(), cli)
			if err != nil {
				return err
			}
			info, err := creator.CreateAdmin(cmd.Context(), models.CreateAdminRequest{
				Email:    email,
				FullName: fullName,
				Password: password,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (id %s)\n", info.Email, info.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "administrator e-mail")
	cmd.Flags().StringVar(&fullName, "name", "", "administrator full name")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of prompting")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (cli *commandLine) readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cli.in).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(cmd.OutOrStdout(), "Enter password: ")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errors.New("password is required")
	}
	return string(pwd), nil
}

func buildAdminCreator(ctx context.Context, cli *commandLine) (adminCreator, error) {
	db, err := cli.database(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewAuthService(service.AuthServiceParams{
		Users:  repository.NewUserRepository(db),
		Logger: cli.logger,
		Clock:  service.Clock{Location: cli.cfg.Location()},
	}), nil
}
