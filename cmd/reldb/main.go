// Command reldb is the database process: a cobra root command wrapping
// serve (run the network shell), shell (an interactive client against a
// running server) and checkpoint (an offline maintenance pass over a
// database directory's tables).
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bobboyms/reldb/pkg/config"
	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/metrics"
	"github.com/bobboyms/reldb/pkg/server"
	"github.com/bobboyms/reldb/pkg/storage"
	"github.com/bobboyms/reldb/pkg/txn"
	"github.com/bobboyms/reldb/pkg/wal"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reldb",
	Short: "reldb is a teaching-grade relational database engine",
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (defaults omitted keys)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON instead of console-formatted text")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(checkpointCmd)
}

// loadConfig reads --config if given, otherwise returns config.DefaultConfig().
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// rootLogger builds the base logger --log-level/--log-json select; every
// component logger is a .With()-scoped child of this one, never a
// package-level global.
func rootLogger(cmd *cobra.Command) zerolog.Logger {
	levelName, _ := cmd.Flags().GetString("log-level")
	jsonOutput, _ := cmd.Flags().GetBool("log-json")

	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if !jsonOutput {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the network shell and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("reldb: %w", err)
		}
		base := rootLogger(cmd)

		walDir := filepath.Join(cfg.DataDir, "wal")
		if err := os.MkdirAll(walDir, 0o755); err != nil {
			return fmt.Errorf("reldb: wal dir: %w", err)
		}
		log, err := wal.OpenLog(walDir, cfg.WALOptions(walDir))
		if err != nil {
			return fmt.Errorf("reldb: open wal: %w", err)
		}
		defer log.Close()

		store := storage.NewEngine(cfg.DataDir)
		cc := lock.NewManager(cfg.LockVariant())

		coord := txn.New(store, cc, log).
			WithCheckpointThreshold(cfg.CheckpointThreshold).
			WithLogger(base)

		srv := server.New(fmt.Sprintf(":%d", cfg.ServerPort), coord).
			WithLogger(base)

		metricsLog := base.With().Str("component", "metrics").Logger()
		metricsAddr := "127.0.0.1:9090"
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsLog.Info().Str("addr", metricsAddr).Msg("metrics listening")
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				metricsLog.Warn().Err(err).Msg("metrics server stopped")
			}
		}()

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			base.Info().Msg("shutdown signal received")
		case err := <-errCh:
			return fmt.Errorf("reldb: server: %w", err)
		}

		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("reldb: shutdown: %w", err)
		}
		return nil
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "connect to a running reldb server as an interactive client",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("reldb: connect to %s: %w", addr, err)
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			io.Copy(os.Stdout, conn)
			close(done)
		}()

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if _, err := fmt.Fprintln(conn, scanner.Text()); err != nil {
				break
			}
		}
		conn.(*net.TCPConn).CloseWrite()
		<-done
		return nil
	},
}

func init() {
	shellCmd.Flags().String("addr", "127.0.0.1:5433", "address of the reldb server to connect to")
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "force a storage checkpoint over every table in a database directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("reldb: %w", err)
		}
		base := rootLogger(cmd).With().Str("component", "checkpoint").Logger()

		store := storage.NewEngine(cfg.DataDir)
		tables := store.ListTables()
		for _, table := range tables {
			if err := store.CreateCheckpoint(table); err != nil {
				return fmt.Errorf("reldb: checkpoint %s: %w", table, err)
			}
			base.Info().Str("table", table).Msg("table checkpointed")
		}

		walDir := filepath.Join(cfg.DataDir, "wal")
		if err := os.MkdirAll(walDir, 0o755); err != nil {
			return fmt.Errorf("reldb: wal dir: %w", err)
		}
		log, err := wal.OpenLog(walDir, cfg.WALOptions(walDir))
		if err != nil {
			return fmt.Errorf("reldb: open wal: %w", err)
		}
		defer log.Close()
		if err := log.Checkpoint(); err != nil {
			return fmt.Errorf("reldb: wal checkpoint: %w", err)
		}

		base.Info().Int("tables", len(tables)).Msg("checkpoint complete")
		return nil
	},
}
