package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/servcur/internal/auth"
	"github.com/loykin/servcur/pkg/client"
)

func createLoginCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Obtain a bearer token",
		Long: `Exchange --user and --password for a bearer token and print it.

Examples:
  export SERVCUR_TOKEN=$(servcur login --user=ci --password=secret)
  servcur project list`,
		Args: cobra.NoArgs,
		RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, _ []string) error {
			if flags.User == "" {
				return errors.New("--user is required")
			}
			tok, err := c.Login(ctx, flags.User, flags.Password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok.Value)
			return err
		}),
	}
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for a [[server.auth.users]] entry",
		Long: `Print the bcrypt hash of a password for the password_hash key of a
configured user. The password is read from stdin when not given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			h, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
			return err
		},
	}
}
