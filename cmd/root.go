package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/vigil/internal/config"
	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/store"
	"github.com/spf13/cobra"
)

// Options holds the global flags shared by every command
type Options struct {
	ConfigPath  string
	DBURL       string
	GalleryDir  string
	CascadePath string
	Threshold   float64
}

var (
	rootOpts Options
	// Cfg is the resolved configuration shared by subcommands
	Cfg *config.Config
	// DB is the optional sightings journal; nil when no database is configured
	DB *store.Store
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "vigil",
	Short:   "Live face enrollment & recognition",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(rootOpts.ConfigPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, cfg, rootOpts)
		if err := cfg.Validate(); err != nil {
			return err
		}
		Cfg = cfg

		logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

		if cfg.Database.URL == "" {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), cfg.Database.URL)
		if err != nil {
			// The journal is optional; everything else still works without it.
			fmt.Fprintf(os.Stderr, "⚠️  Sightings journal disabled, failed to connect to database: %v\n", err)
			DB = nil
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
	},
}

// applyFlagOverrides lets explicitly set global flags win over file and environment values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, o Options) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.URL = o.DBURL
	}
	if flags.Changed("gallery") {
		cfg.GalleryDir = o.GalleryDir
	}
	if flags.Changed("cascade") {
		cfg.CascadePath = o.CascadePath
	}
	if flags.Changed("threshold") {
		cfg.Threshold = o.Threshold
	}
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootOpts.ConfigPath, "config", "c", "", "Path to a YAML config file")
	pf.StringVar(&rootOpts.DBURL, "db", "", "PostgreSQL connection string for the sightings journal (default: $DATABASE_URL or POSTGRES_*)")
	pf.StringVar(&rootOpts.GalleryDir, "gallery", "", "Directory holding enrolled face samples (default: $VIGIL_GALLERY_DIR or ./dataset)")
	pf.StringVar(&rootOpts.CascadePath, "cascade", "", "Haar cascade XML for face detection (default: $VIGIL_CASCADE_PATH)")
	pf.Float64VarP(&rootOpts.Threshold, "threshold", "t", config.DefaultThreshold, "Maximum LBPH distance accepted as a match (lower is stricter)")
}
