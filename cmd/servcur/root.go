package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/servcur/pkg/client"
)

const tokenEnv = "SERVCUR_TOKEN"

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "servcur",
		Short: "Git-driven deployment daemon",
		Long: `servcur clones git repositories, deploys them with Docker, Docker Compose
or custom scripts, and streams the output of every deployment.

Examples:
  servcur serve --config=servcur.toml
  servcur project create demo main --url=https://github.com/me/demo.git --kind=DockerFile
  servcur action demo main start --follow
  servcur logs show 01J9Z3M5Q8S7T4V2W1X0Y9Z8A7`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", "http://127.0.0.1:8080/api", "daemon API URL")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	pf.StringVar(&flags.CACert, "ca-cert", "", "PEM file to trust for an https daemon")
	pf.BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification")
	pf.StringVar(&flags.Token, "token", os.Getenv(tokenEnv), "bearer token from 'servcur login' (default $"+tokenEnv+")")
	pf.StringVar(&flags.User, "user", "", "basic auth username")
	pf.StringVar(&flags.Password, "password", "", "basic auth password")

	root.AddCommand(
		createServeCommand(flags),
		createProjectCommand(flags),
		createActionCommand(flags),
		createRunningCommand(flags),
		createLogsCommand(flags),
		createAttachCommand(flags),
		createLoginCommand(flags),
		createHashPasswordCommand(),
	)
	return root
}

func newClient(flags *GlobalFlags) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:  flags.APIUrl,
		Timeout:  flags.APITimeout,
		CACert:   flags.CACert,
		Insecure: flags.Insecure,
		Token:    flags.Token,
		Username: flags.User,
		Password: flags.Password,
	})
}

// withClient adapts a client-backed handler to cobra's RunE.
func withClient(flags *GlobalFlags, fn func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient(flags)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, c, cmd, args)
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
