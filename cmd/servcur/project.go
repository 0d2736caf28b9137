package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/servcur/pkg/client"
)

func createProjectCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage registered projects",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List projects",
			Args:  cobra.NoArgs,
			RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, _ []string) error {
				list, err := c.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), list)
			}),
		},
		&cobra.Command{
			Use:   "get <name> <branch>",
			Short: "Show one project",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
				p, err := c.GetProject(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			}),
		},
		createProjectCreateCommand(flags),
		&cobra.Command{
			Use:   "remove <name> <branch>",
			Short: "Delete the checkout and unregister the project",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
				p, err := c.RemoveProject(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s/%s\n", p.Name, p.Branch)
				return err
			}),
		},
		&cobra.Command{
			Use:   "pull <name> <branch>",
			Short: "Run git pull in the project checkout",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
				if err := c.Pull(ctx, args[0], args[1]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "pulled %s/%s\n", args[0], args[1])
				return err
			}),
		},
	)
	return cmd
}

func createProjectCreateCommand(flags *GlobalFlags) *cobra.Command {
	cf := &CreateFlags{}
	cmd := &cobra.Command{
		Use:   "create <name> <branch>",
		Short: "Clone a repository and register it",
		Long: `Clone <url> at <branch> into the projects root and register it.

Examples:
  servcur project create web main --url=https://github.com/me/web.git --kind=DockerFile
  servcur project create api dev --url=https://github.com/me/api.git --kind=DockerCompose --token=$GH_TOKEN
  servcur project create job main --url=https://github.com/me/job.git --kind=Custom --start="make run" --stop="make stop"`,
		Args: cobra.ExactArgs(2),
		RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
			req, err := createRequest(args[0], args[1], *cf)
			if err != nil {
				return err
			}
			p, err := c.CreateProject(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		}),
	}
	cmd.Flags().StringVar(&cf.URL, "url", "", "https clone URL (required)")
	cmd.Flags().StringVar(&cf.Token, "token", "", "access token for private repositories")
	cmd.Flags().StringVar(&cf.Kind, "kind", "DockerFile", "DockerFile, DockerCompose or Custom")
	cmd.Flags().StringVar(&cf.StartCmd, "start", "", "Custom: start script")
	cmd.Flags().StringVar(&cf.StopCmd, "stop", "", "Custom: stop script")
	cmd.Flags().StringVar(&cf.RestartCmd, "restart", "", "Custom: restart script")
	cmd.Flags().StringArrayVar(&cf.Env, "env", nil, "KEY=VALUE added to every deployment step (repeatable)")
	cmd.Flags().BoolVar(&cf.Redeploy, "redeploy-on-push", false, "start the project again after a push webhook pulls it")
	if err := cmd.MarkFlagRequired("url"); err != nil {
		panic(err)
	}
	return cmd
}

// createRequest checks the flag combination locally; the daemon validates
// names, URL and kind again.
func createRequest(name, branch string, cf CreateFlags) (client.CreateProjectRequest, error) {
	kind := client.Kind{Type: cf.Kind}
	isCustom := strings.EqualFold(strings.ReplaceAll(cf.Kind, "_", ""), "custom")
	hasScripts := cf.StartCmd != "" || cf.StopCmd != "" || cf.RestartCmd != ""
	switch {
	case isCustom && cf.StartCmd == "":
		return client.CreateProjectRequest{}, fmt.Errorf("--start is required for Custom projects")
	case isCustom:
		kind.Start, kind.Stop, kind.Restart = cf.StartCmd, cf.StopCmd, cf.RestartCmd
	case hasScripts:
		return client.CreateProjectRequest{}, fmt.Errorf("--start/--stop/--restart only apply to Custom projects")
	}
	return client.CreateProjectRequest{
		Name:   name,
		Branch: branch,
		URL:    cf.URL,
		Token:  cf.Token,
		Kind:   kind,
		Env:    cf.Env,

		RedeployOnPush: cf.Redeploy,
	}, nil
}
