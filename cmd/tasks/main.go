package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/immersive/internal/app"
	"github.com/five82/immersive/internal/config"
	"github.com/five82/immersive/internal/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(app.Run).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tasks: %v\n", err)
		return 1
	}
	return 0
}

type runFunc func(ctx context.Context, opts app.Options) error

func newRootCmd(runApp runFunc) *cobra.Command {
	var opts app.Options

	root := &cobra.Command{
		Use:           "tasks",
		Short:         "Terminal task list",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default "+config.DefaultPath()+")")
	flags.StringVar(&opts.PrefsPath, "prefs", "", "preferences file (optional)")
	flags.StringVar(&opts.TasksFile, "tasks", "", "tasks file, overrides tasks_file")
	root.Flags().StringVar(&opts.LogFile, "log-file", "", "log file, overrides log_file")
	root.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	root.Flags().IntVar(&opts.AutosaveSecs, "autosave", 0, "autosave interval in seconds (0 disables)")

	root.AddCommand(newListCmd(&opts))
	return root
}

func newListCmd(opts *app.Options) *cobra.Command {
	var openOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the tasks file without starting the TUI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := tasksPath(*opts)
			if err != nil {
				return err
			}
			s, err := tasks.Load(path)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), s, openOnly)
		},
	}
	cmd.Flags().BoolVar(&openOnly, "open", false, "only print open tasks")
	return cmd
}

func tasksPath(opts app.Options) (string, error) {
	if opts.TasksFile != "" {
		return config.ExpandPath(opts.TasksFile)
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.TasksFile, nil
}

func printTasks(w io.Writer, s tasks.State, openOnly bool) error {
	for i, t := range s.Tasks {
		if openOnly && t.Done {
			continue
		}
		box := "[ ]"
		if t.Done {
			box = "[x]"
		}
		if _, err := fmt.Fprintf(w, "%3d %s %s\n", i+1, box, t.Task); err != nil {
			return err
		}
	}
	open, done := s.Counts()
	_, err := fmt.Fprintf(w, "%d open, %d done\n", open, done)
	return err
}
