package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrelay/history"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/relay/server"
	"github.com/hupe1980/agentrelay/runtime"
	"github.com/hupe1980/agentrelay/store"
	"github.com/hupe1980/agentrelay/store/inmem"
	"github.com/hupe1980/agentrelay/store/sqlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "agentrelay",
		Short:         "Durable workflow runtime with human-in-the-loop relay",
		Long:          "Agentrelay runs crash-resumable agent workflows and relays their questions to a browser.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newResetCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dbPath, _ := cmd.Flags().GetString("db")
			logFormat, _ := cmd.Flags().GetString("log-format")

			logger := logging.NewLogger(&logging.LoggerConfig{
				Level:     logging.LogLevelInfo,
				Format:    logFormat,
				Output:    os.Stderr,
				Component: "relay-server",
			})

			var st store.SessionStore
			if dbPath == "" {
				st = inmem.New()
			} else {
				sq, err := sqlite.New(dbPath)
				if err != nil {
					return fmt.Errorf("open session database: %w", err)
				}
				defer sq.Close()
				st = sq
			}

			srv := server.New(st, func(o *server.Options) {
				o.Logger = logger
				o.Addr = addr
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil {
				return err
			}
			fmt.Printf("Relay server listening on %s\n", srv.Addr())

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().String("addr", ":8787", "Listen address")
	cmd.Flags().String("db", "agentrelay.db", "SQLite session database path (empty for in-memory)")
	cmd.Flags().String("log-format", "json", "Log format: json or text")
	return cmd
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Show the persisted state of a workflow directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			mem, err := memory.Load(runtime.StatePath(dir))
			if err != nil {
				return fmt.Errorf("load workflow state: %w", err)
			}

			fmt.Printf("Status:   %s\n", mem.Status())
			if t := mem.StartedAt(); t != nil {
				fmt.Printf("Started:  %s\n", t.Format(time.RFC3339))
			}
			if msg := mem.LastError(); msg != "" {
				fmt.Printf("Error:    %s\n", msg)
			}

			snapshot := mem.Snapshot()
			if len(snapshot) == 0 {
				fmt.Println("Memory:   (empty)")
				return nil
			}

			keys := make([]string, 0, len(snapshot))
			for k := range snapshot {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Println("Memory:")
			for _, k := range keys {
				fmt.Printf("  %s: %v\n", k, snapshot[k])
			}
			return nil
		},
	}
	return cmd
}

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [n]",
		Short: "Show the most recent history events, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			n := 20
			if len(args) == 1 {
				parsed, err := strconv.Atoi(args[0])
				if err != nil || parsed < 1 {
					return fmt.Errorf("invalid event count %q", args[0])
				}
				n = parsed
			}

			log, err := history.Open(runtime.HistoryPath(dir))
			if err != nil {
				return fmt.Errorf("open history log: %w", err)
			}

			events, err := log.Recent(n)
			if err != nil {
				return fmt.Errorf("read history log: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("No events recorded.")
				return nil
			}

			for _, ev := range events {
				line := fmt.Sprintf("%s  %-24s", ev.Timestamp.Format(time.RFC3339), ev.Kind)
				if ev.Agent != "" {
					line += fmt.Sprintf("  agent=%s", ev.Agent)
				}
				if ev.Attempt > 0 {
					line += fmt.Sprintf("  attempt=%d", ev.Attempt)
				}
				if ev.Message != "" {
					line += fmt.Sprintf("  %s", ev.Message)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().String("dir", ".", "Workflow directory")
	return cmd
}

func newResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [dir]",
		Short: "Clear workflow state (keeps history unless --hard)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			hard, _ := cmd.Flags().GetBool("hard")

			rt, err := runtime.New(dir)
			if err != nil {
				return err
			}
			defer rt.Close()

			if hard {
				if err := rt.ResetHard(); err != nil {
					return err
				}
				fmt.Println("State and history cleared.")
				return nil
			}

			if err := rt.Reset(); err != nil {
				return err
			}
			fmt.Println("State cleared; history preserved.")
			return nil
		},
	}

	cmd.Flags().Bool("hard", false, "Also truncate the history log")
	return cmd
}
