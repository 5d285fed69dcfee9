package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/vigil/internal/capture"
	"github.com/andresmejia3/vigil/internal/config"
	"github.com/andresmejia3/vigil/internal/display"
	"github.com/andresmejia3/vigil/internal/enroll"
	"github.com/andresmejia3/vigil/internal/pipeline"
	"github.com/andresmejia3/vigil/internal/tracker"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/andresmejia3/vigil/internal/vision"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// LiveOptions holds the flags of the live command
type LiveOptions struct {
	Input       string
	Addr        string
	Devices     string
	Backends    string
	GracePeriod string
	BlipLength  string
}

var liveOpts LiveOptions

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Recognize faces on a camera (or video) feed and serve it over HTTP",
	Long: `Opens the first working camera, recognizes every face against the gallery and
serves the annotated feed at /stream. POST /api/v1/enroll with a name to add
the face currently on screen to the gallery.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := validateLiveFlags(Cfg, &liveOpts); err != nil {
			utils.ShowError("Invalid live options", err, nil)
			return err
		}
		return runLive(cmd.Context(), Cfg)
	},
}

func init() {
	liveCmd.Flags().StringVarP(&liveOpts.Input, "input", "i", "", "Video file or stream URL decoded with ffmpeg instead of a camera")
	liveCmd.Flags().StringVarP(&liveOpts.Addr, "addr", "a", "", "HTTP listen address (default: $VIGIL_HTTP_ADDR or 127.0.0.1:8080)")
	liveCmd.Flags().StringVar(&liveOpts.Devices, "devices", "", "Comma-separated camera indices to try (default: 0,1,2)")
	liveCmd.Flags().StringVar(&liveOpts.Backends, "backends", "", "Comma-separated capture backends to try (default, v4l2, any, dshow, msmf, avf)")
	liveCmd.Flags().StringVarP(&liveOpts.GracePeriod, "grace-period", "g", "", "The longest period a face can be missing before its sighting is closed (default: 2s)")
	liveCmd.Flags().StringVarP(&liveOpts.BlipLength, "blip-duration", "b", "", "Minimum duration of a sighting to be journaled (filters blips)")
	rootCmd.AddCommand(liveCmd)
}

// validateLiveFlags folds the live flags into cfg and rejects unusable values.
func validateLiveFlags(cfg *config.Config, opts *LiveOptions) error {
	if opts.Input != "" {
		cfg.Camera.Input = opts.Input
	}
	if opts.Addr != "" {
		cfg.HTTP.Addr = opts.Addr
	}
	if opts.Devices != "" {
		idx, err := config.ParseIndices(opts.Devices)
		if err != nil {
			return err
		}
		cfg.Camera.Indices = idx
	}
	if opts.Backends != "" {
		cfg.Camera.Backends = strings.FieldsFunc(opts.Backends, func(r rune) bool { return r == ',' || r == ' ' })
	}
	if opts.GracePeriod != "" {
		d, err := time.ParseDuration(opts.GracePeriod)
		if err != nil {
			return fmt.Errorf("invalid grace-period format (use '2s', '500ms'): %w", err)
		}
		cfg.Journal.GracePeriod = d
	}
	if opts.BlipLength != "" {
		d, err := time.ParseDuration(opts.BlipLength)
		if err != nil {
			return fmt.Errorf("invalid blip-duration format (use '500ms'): %w", err)
		}
		cfg.Journal.MinDuration = d
	}

	if in := cfg.Camera.Input; in != "" && !isStreamURL(in) {
		info, err := os.Stat(in)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("input file does not exist: %w", err)
			}
			return fmt.Errorf("unable to access input file: %w", err)
		}
		if info.IsDir() {
			return errors.New("input path is a directory, expected a video file")
		}
	}
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", cfg.HTTP.Addr, err)
	}
	return cfg.Validate()
}

func isStreamURL(s string) bool {
	return strings.Contains(s, "://")
}

// captureSource returns the opener and the combinations to try for cfg.
func captureSource(cfg *config.Config) (capture.Opener, capture.Options, string) {
	if in := cfg.Camera.Input; in != "" {
		opt := capture.Options{Indices: []int{0}, Backends: []string{"ffmpeg"}, Width: cfg.Camera.Width, Height: cfg.Camera.Height}
		return capture.FFmpegOpener(in, !isStreamURL(in)), opt, in
	}
	opt := capture.Options{
		Indices:  cfg.Camera.Indices,
		Backends: cfg.Camera.Backends,
		Width:    cfg.Camera.Width,
		Height:   cfg.Camera.Height,
	}
	return vision.OpenCamera, opt, "camera"
}

func runLive(ctx context.Context, cfg *config.Config) error {
	eng, err := newEngine(cfg)
	if err != nil {
		utils.ShowError("Failed to open gallery", err, nil)
		return err
	}
	defer eng.Close()
	eng.warmUp(ctx)

	// 1. Capture device
	opener, capOpts, source := captureSource(cfg)
	session, err := capture.Open(opener, capOpts)
	if err != nil {
		utils.ShowError("No capture device could be opened", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "📷 Capturing from %s\n", session.Target())

	// 2. Sightings journal (database optional)
	var (
		writer    tracker.Writer
		recorder  enroll.Recorder
		sessionID uuid.UUID
	)
	if DB != nil {
		if sessionID, err = DB.StartSession(ctx, source); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Sightings will not be persisted: %v\n", err)
		} else {
			js := DB.Session(sessionID)
			writer, recorder = js, js
			fmt.Fprintf(os.Stderr, "🗄️  Journal session %s\n", sessionID)
		}
	}
	journal := tracker.NewJournal(writer, tracker.Options{
		GracePeriod: cfg.Journal.GracePeriod,
		MinDuration: cfg.Journal.MinDuration,
	})

	// 3. Pipeline and display
	mailbox := display.NewMailbox()
	pipe := pipeline.New(eng.detector, eng.slot, mailbox, journal)
	enroller := enroll.New(eng.gallery, eng.detector, eng.trainer, session, recorder)
	server := display.NewServer(cfg.HTTP.Addr, mailbox, enroller, eng.slot)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Run() }()
	session.Start(pipe.Handle)

	fmt.Fprintf(os.Stderr, "🎥 Live feed at http://%s/stream (Ctrl+C to stop)\n", server.Addr())

	// 4. Run until interrupted, the source ends or the server dies
	var runErr error
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\n🛑 Stopping...")
	case <-session.Done():
		fmt.Fprintln(os.Stderr, "\n🏁 Capture source ended.")
	case runErr = <-serveErr:
		utils.ShowError("HTTP server failed", runErr, nil)
	}

	// 5. Cleanup
	if err := session.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to release capture device: %v\n", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	journal.Close()
	if DB != nil && sessionID != uuid.Nil {
		// Use Background here because the main context is most likely cancelled already.
		if err := DB.EndSession(context.Background(), sessionID); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to close journal session: %v\n", err)
		}
	}

	printLiveSummary(journal, mailbox)
	return runErr
}

func printLiveSummary(journal *tracker.Journal, mailbox *display.Mailbox) {
	order, byIdentity := journal.Summary()
	published, dropped := mailbox.Stats()

	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "📊 SESSION SUMMARY\n")
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	if len(order) == 0 {
		fmt.Fprintf(os.Stderr, "\nNo known faces were sighted.\n")
	}
	for _, name := range order {
		fmt.Fprintf(os.Stderr, "\n👤 %s\n", name)
		for _, s := range byIdentity[name] {
			fmt.Fprintf(os.Stderr, "   %s -> %s  (%s, %d frames, best %.1f)\n",
				s.Start.Local().Format("15:04:05"),
				s.End.Local().Format("15:04:05"),
				tracker.FmtDuration(s.End.Sub(s.Start)),
				s.FrameCount,
				s.BestDistance,
			)
		}
	}
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🖼️  Frames Published:   %d (%d never viewed)\n", published, dropped)
	if n := journal.Dropped(); n > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Journal Backlog Drops: %d\n", n)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// describeError turns an error kind into operator wording.
func describeError(err error) string {
	switch {
	case errors.Is(err, types.ErrEmptyName):
		return "Name must not be empty"
	case errors.Is(err, types.ErrNoFrame):
		return "No frame available yet"
	case errors.Is(err, types.ErrNoFace):
		return "No face found in the frame"
	case errors.Is(err, types.ErrModelLoad):
		return "Face detector unavailable (check the cascade path)"
	case errors.Is(err, types.ErrIO):
		return "Gallery could not be read or written"
	case errors.Is(err, types.ErrTraining):
		return "Recognizer retrain failed, the previous model is still active"
	default:
		return "Operation failed"
	}
}
