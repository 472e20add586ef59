package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"hwshim/internal/app"
	"hwshim/internal/config"
	"hwshim/internal/storage"
	"hwshim/pkg/logger"
)

type options struct {
	configPath string
}

// New создает корневую CLI-команду.
func New(version string) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "hwshim",
		Short:         "Слой совместимости оборудования и пересылки AT-команд",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("HWSHIM_CONFIG"), "путь к YAML-конфигу")

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newExecCmd(opts))
	root.AddCommand(newModulesCmd(opts))
	root.AddCommand(newConsoleCmd(opts))
	root.AddCommand(newAuditCmd(opts))
	return root
}

// open загружает конфиг и собирает приложение.
func (o *options) open(ctx context.Context, mode string) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Agent.Mode = mode
	return app.NewApp(ctx, cfg, logger.New(cfg.Agent.LogLevel))
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить демон: binder-сокет, web и планировщик",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(ctx, "daemon")
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func newExecCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "exec <module> <command> [args...]",
		Short: "Выполнить команду модуля от имени оператора",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, execErr := a.Service("console").Execute(ctx, a.Config.Agent.Operator, args[0], args[1], args[2:])
			if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			return execErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "таймаут команды")
	return cmd
}

func newModulesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "Показать модули и их команды",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			defer a.Close()

			out := map[string][]string{}
			for _, name := range a.Registry.Providers() {
				cmds, err := a.Registry.Commands(name)
				if err != nil {
					return err
				}
				out[name] = cmds
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newConsoleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Читать команды \"/module command args\" из stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.open(ctx, "cli")
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunConsole(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func newAuditCmd(opts *options) *cobra.Command {
	var (
		q      storage.AuditQuery
		since  time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Показать журнал аудита",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), "cli")
			if err != nil {
				return err
			}
			defer a.Close()

			if since > 0 {
				q.From = time.Now().Add(-since)
			}
			events, err := a.Store.QueryAudit(cmd.Context(), q)
			if err != nil {
				return err
			}
			if asJSON || !isTerminal(cmd.OutOrStdout()) {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAudit(events))
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Source, "source", "", "фильтр по транспорту")
	cmd.Flags().StringVar(&q.Subject, "subject", "", "фильтр по subject")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "максимум записей")
	cmd.Flags().DurationVar(&since, "since", 0, "только события за этот период")
	cmd.Flags().BoolVar(&asJSON, "json", false, "вывод в JSON")
	return cmd
}

func renderAudit(events []storage.AuditEvent) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Time", "Source", "Subject", "Action", "Status", "Request"})
	for i, ev := range events {
		tw.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			ev.TS.Local().Format(time.DateTime),
			ev.Source, ev.Subject, ev.Action, ev.Status, ev.RequestID,
		})
	}
	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
