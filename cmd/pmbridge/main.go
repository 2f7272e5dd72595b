package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmd := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createListCommand(cmd),
		createStatusCommand(cmd),
		createCreateCommand(cmd),
		createStartCommand(cmd),
		createStopCommand(cmd),
		createRemoveCommand(cmd),
		createChildrenCommand(cmd),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "pmbridge",
		Short: "Supervisor-style API over a pm2 daemon",
		Long: `Pmbridge exposes a supervisor-style lifecycle API over processes owned
by an external pm2 daemon, reconciling a named group of children against
pm2's own process table.

Examples:
  pmbridge serve --config=config.toml     # Start daemon
  pmbridge list                           # List children and statuses
  pmbridge create --name=worker --cmd="python job.py --flag"
  pmbridge stop --name=worker --api-url=http://remote:8080/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, api *APIFlags) {
	cmd.Flags().StringVar(&api.URL, "api-url", "", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&api.Timeout, "api-timeout", 30*time.Second, "request timeout")
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{ConfigPath: globalFlags.ConfigPath}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the pmbridge daemon",
		Long: `Start the pmbridge daemon serving the group HTTP API.
All configuration is loaded from a TOML config file.

Examples:
  pmbridge serve --config=config.toml
  pmbridge serve config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serveFlags.ConfigPath == "" {
				serveFlags.ConfigPath = globalFlags.ConfigPath
			}
			return runServeCommand(serveFlags, args)
		},
	}
	return cmd
}

func createListCommand(c command) *cobra.Command {
	api := APIFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List group children and their statuses",
		Long: `List the group's children with their normalized statuses.
The listing always reflects a fresh pm2 resync.

Examples:
  pmbridge list
  pmbridge list --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(api)
		},
	}
	addAPIFlags(cmd, &api)
	return cmd
}

func createStatusCommand(c command) *cobra.Command {
	flags := StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show one child's status",
		Long: `Show the status of one child. An unknown child reads as STOPPED.

Examples:
  pmbridge status --name=worker
  pmbridge status --name=worker --force   # resync before reading`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "child name (required)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "resync from pm2 before reading")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

func createCreateCommand(c command) *cobra.Command {
	flags := CreateFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register and start a child",
		Long: `Register a child with the group and start it. The command string is
split on spaces into program and arguments; the program path is resolved
relative to the group's working directory.

Examples:
  pmbridge create --name=worker --cmd="python job.py --flag"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Create(flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "child name (required)")
	cmd.Flags().StringVar(&flags.Cmd, "cmd", "", "program and arguments (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("cmd"); err != nil {
		panic(err)
	}
	return cmd
}

func createStartCommand(c command) *cobra.Command {
	flags := NameFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a registered child",
		Long: `Start a child already known to the group.

Examples:
  pmbridge start --name=worker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "child name (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

func createStopCommand(c command) *cobra.Command {
	flags := NameFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a child",
		Long: `Stop a child known to the group.

Examples:
  pmbridge stop --name=worker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "child name (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

func createRemoveCommand(c command) *cobra.Command {
	flags := NameFlags{}
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a child from pm2 and the group",
		Long: `Delete a child from pm2; the local entry is dropped only after pm2
confirms the removal.

Examples:
  pmbridge remove --name=worker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Remove(flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "child name (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	return cmd
}

func createChildrenCommand(c command) *cobra.Command {
	flags := ChildrenFlags{}
	cmd := &cobra.Command{
		Use:   "children",
		Short: "Show detailed child data",
		Long: `Show partial views of every child: name and status always, plus the
requested optional sections.

Examples:
  pmbridge children --uptime --system
  pmbridge children --refresh --pm2-status --logs --execution`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Children(flags)
		},
	}
	cmd.Flags().BoolVar(&flags.Refresh, "refresh", false, "resync from pm2 first")
	cmd.Flags().BoolVar(&flags.Uptime, "uptime", false, "include uptime seconds")
	cmd.Flags().BoolVar(&flags.PM2Status, "pm2-status", false, "include pm2's raw status")
	cmd.Flags().BoolVar(&flags.System, "system", false, "include pid and memory")
	cmd.Flags().BoolVar(&flags.Logs, "logs", false, "include log paths")
	cmd.Flags().BoolVar(&flags.Execution, "execution", false, "include execution detail")
	addAPIFlags(cmd, &flags.API)
	return cmd
}
