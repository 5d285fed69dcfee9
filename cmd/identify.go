package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/vigil/internal/pipeline"
	"github.com/andresmejia3/vigil/internal/recognizer"
	"github.com/andresmejia3/vigil/internal/tracker"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var (
	identifyOut     string
	identifyHistory int
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Recognize the faces in a photo against the gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runIdentify(cmd, args[0])
	},
}

func init() {
	identifyCmd.Flags().StringVarP(&identifyOut, "out", "o", "", "Write the annotated image (JPEG) to this path")
	identifyCmd.Flags().IntVarP(&identifyHistory, "history", "n", 5, "Recent sightings to show per recognized identity (needs a database)")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, imagePath string) error {
	ctx := cmd.Context()

	frame, err := loadFrame(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image", err, nil)
		return err
	}

	eng, err := newEngine(Cfg)
	if err != nil {
		utils.ShowError("Failed to open gallery", err, nil)
		return err
	}
	defer eng.Close()

	if !pipeline.Available(eng.detector) {
		err := types.ErrModelLoad
		utils.ShowError(describeError(err), err, nil)
		return err
	}
	eng.warmUp(ctx)

	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	out, err := pipeline.New(eng.detector, eng.slot, nil, nil).Process(*frame)
	if err != nil {
		utils.ShowError("Recognition failed", err, nil)
		return err
	}

	if len(out.Faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tDISTANCE\tBOX")
	fmt.Fprintln(w, "-\t----\t--------\t---")
	for i, f := range out.Faces {
		name := f.Name
		if !f.Known() {
			name = pipeline.UnknownLabel
		}
		dist := "-"
		if f.Label != recognizer.Unknown {
			dist = fmt.Sprintf("%.1f", f.Distance)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", i+1, name, dist, f.Box)
	}
	w.Flush()

	if identifyOut != "" {
		if err := os.WriteFile(identifyOut, out.JPEG, 0644); err != nil {
			utils.ShowError("Failed to write annotated image", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "🖼️  Annotated image written to %s\n", identifyOut)
	}

	if DB == nil || identifyHistory <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	for _, f := range out.Faces {
		if !f.Known() || seen[f.Name] {
			continue
		}
		seen[f.Name] = true

		last, ok, err := DB.LastSeen(ctx, f.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to load history for %s: %v\n", f.Name, err)
			continue
		}
		fmt.Printf("\n👤 %s: ", f.Name)
		if !ok {
			fmt.Println("never sighted live")
			continue
		}
		records, err := DB.ListSightings(ctx, f.Name, identifyHistory)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to load history for %s: %v\n", f.Name, err)
			continue
		}
		fmt.Printf("last seen %s, %d recent sightings\n", last.Local().Format("2006-01-02 15:04:05"), len(records))
		for _, r := range records {
			fmt.Printf("   %s  for %s\n", r.Start.Local().Format("2006-01-02 15:04:05"), tracker.FmtDuration(r.End.Sub(r.Start)))
		}
	}
	return nil
}
