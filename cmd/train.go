package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/vigil/internal/recognizer"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the recognizer on the gallery and report what it learned",
	Long: `Loads every gallery sample and trains a recognizer the same way 'vigil live'
does at startup. Useful to check a gallery after copying samples into it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTrain(cmd)
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command) error {
	eng, err := newEngine(Cfg)
	if err != nil {
		utils.ShowError("Failed to open gallery", err, nil)
		return err
	}
	defer eng.Close()

	var bar *progressbar.ProgressBar
	eng.trainer.Progress = func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("🧠 Loading samples"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		bar.Set(done)
	}

	model, stats, err := eng.trainer.Build(cmd.Context())
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		utils.ShowError(describeError(err), err, nil)
		return err
	}
	defer recognizer.Discard(model)

	fmt.Printf("\n📂 Gallery:     %s\n", eng.gallery.Dir())
	fmt.Printf("🖼️  Samples:     %d of %d (%d unreadable)\n", stats.Samples, stats.Entries, stats.Skipped)
	fmt.Printf("👥 Identities:  %d\n", stats.Identities)
	if !stats.Ready {
		fmt.Println("⚠️  Nothing to train on. Enroll someone first.")
		return nil
	}
	for label, name := range model.Registry().Names() {
		fmt.Printf("   [%d] %s\n", label, name)
	}
	fmt.Printf("✅ Recognizer trained (threshold %.1f)\n", model.Threshold())
	return nil
}
