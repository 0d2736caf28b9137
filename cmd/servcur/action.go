package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/servcur/pkg/client"
)

func createActionCommand(flags *GlobalFlags) *cobra.Command {
	af := &ActionFlags{}
	cmd := &cobra.Command{
		Use:   "action <name> <branch> <start|stop|restart>",
		Short: "Queue a deployment action",
		Long: `Queue start, stop or restart for a project and print the execution id.
The project kind is looked up unless --kind is given. With --follow the
selected output stream is printed until the execution ends.

Examples:
  servcur action web main start
  servcur action web main restart --follow --stream=stderr`,
		Args: cobra.ExactArgs(3),
		RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
			kind := af.Kind
			if kind == "" {
				p, err := c.GetProject(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				kind = p.Kind.Type
			}
			res, err := c.Action(ctx, args[0], args[1], client.ActionRequest{Kind: kind, Command: args[2]})
			if err != nil {
				return err
			}
			if !af.Follow {
				return printJSON(cmd.OutOrStdout(), res)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "execution %s\n", res.ID)
			return attach(ctx, c, cmd, res.ID, af.Stream)
		}),
	}
	cmd.Flags().StringVar(&af.Kind, "kind", "", "project kind; looked up when empty")
	cmd.Flags().BoolVar(&af.Follow, "follow", false, "stream output until the execution ends")
	cmd.Flags().StringVar(&af.Stream, "stream", "stdout", "stream to follow: stdout or stderr")
	return cmd
}

func createAttachCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <execution-id> [stdout|stderr]",
		Short: "Stream the output of a running execution",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
			stream := "stdout"
			if len(args) == 2 {
				stream = args[1]
			}
			return attach(ctx, c, cmd, args[0], stream)
		}),
	}
}

// attach is not bound by --api-timeout, so long builds can be followed.
func attach(ctx context.Context, c *client.Client, cmd *cobra.Command, id, stream string) error {
	err := c.Attach(ctx, id, stream, cmd.OutOrStdout())
	if client.IsNotFound(err) {
		return fmt.Errorf("execution %s is not running (see: servcur logs show %s)", id, id)
	}
	return err
}

func createContainerLogsCommand(flags *GlobalFlags) *cobra.Command {
	var since int64
	cmd := &cobra.Command{
		Use:   "container <container-id>",
		Short: "Follow the log of a docker container",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
			return c.ContainerLogs(ctx, args[0], since, cmd.OutOrStdout())
		}),
	}
	cmd.Flags().Int64Var(&since, "since", 0, "only lines after this unix timestamp (seconds)")
	return cmd
}

func createRunningCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "List live executions",
		Args:  cobra.NoArgs,
		RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, _ []string) error {
			live, err := c.Running(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), live)
		}),
	}
}

func createLogsCommand(flags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read persisted execution logs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List persisted logs",
			Args:  cobra.NoArgs,
			RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, _ []string) error {
				entries, err := c.ListLogs(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entries)
			}),
		},
		createContainerLogsCommand(flags),
		&cobra.Command{
			Use:   "show <execution-id>",
			Short: "Print one execution log",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(flags, func(ctx context.Context, c *client.Client, cmd *cobra.Command, args []string) error {
				log, err := c.GetLog(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), log)
			}),
		},
	)
	return cmd
}
