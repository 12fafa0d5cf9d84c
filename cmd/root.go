package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/log"
	"github.com/andresmejia3/facegate/internal/present"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/spf13/cobra"
)

// dbAnnotation marks how a subcommand uses the history database.
const dbAnnotation = "facegate/db"

const (
	dbOptional = "optional"
	dbRequired = "required"
)

var (
	// DB is the global database connection shared by subcommands. Nil when history is disabled.
	DB *store.Store
	// dbURL is the connection string
	dbURL    string
	envFile  string
	logLevel string
	logFile  string
)

// Version is the application version.
const Version = "0.1.0"

// screens lists the capture modes shown on the welcome page.
var screens = [][2]string{
	{"integrated", "Live camera, single-face capture, RGB 256x256 inference"},
	{"camera", "Live camera, single-face capture, gallery only"},
	{"ml", "Run the model on an image file"},
	{"legacy", "Live camera, grayscale 28x28 inference"},
}

var rootCmd = &cobra.Command{
	Use:     "facegate",
	Short:   "Single-face camera capture with on-device ONNX inference",
	Version: Version, // This enables the --version flag
	Run: func(cmd *cobra.Command, args []string) {
		present.Welcome(cmd.OutOrStdout(), screens)
		fmt.Fprintf(cmd.OutOrStdout(), "\nRun 'facegate <screen> --help' for options.\n")
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		if logLevel == "" {
			logLevel = os.Getenv("LOG_LEVEL")
		}
		if err := log.Setup(log.Config{Level: logLevel, File: logFile}); err != nil {
			return err
		}

		mode := cmd.Annotations[dbAnnotation]
		if mode == "" {
			return nil
		}
		url := config.ResolveDBURL(dbURL)
		if url == "" {
			if mode == dbRequired {
				return fmt.Errorf("%s needs a database: pass --db or set POSTGRES_HOST", cmd.Name())
			}
			log.Debug(nil, "capture history disabled")
			return nil
		}

		// Use the command's context (which will be cancellable) for the connection
		var err error
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			if mode == dbRequired {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			fmt.Fprintf(os.Stderr, "⚠️  History disabled, database unreachable: %v\n", err)
			DB = nil
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// The main context might be cancelled already (Ctrl+C) and we still need to close.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for capture history (default: from POSTGRES_* env, disabled if unset)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic log level: debug, info, warn, error (default: LOG_LEVEL or warn)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write diagnostics to this rotated log file")
}
