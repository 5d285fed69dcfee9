package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB      bool
	resetGallery bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Gallery samples, Sightings journal)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetGallery {
			resetDB = true
			resetGallery = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetGallery && (resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to delete every gallery sample?")) {
			g, err := gallery.Open(Cfg.GalleryDir)
			if err != nil {
				utils.ShowError("Failed to open gallery", err, nil)
				return err
			}
			fmt.Println("🗑️  Clearing Gallery...")
			n, err := g.Clear()
			if err != nil {
				utils.ShowError("Failed to clear gallery", err, nil)
				return err
			}
			fmt.Printf("   removed %d samples\n", n)
		}

		if resetDB {
			if DB == nil {
				fmt.Fprintln(os.Stderr, "ℹ️  No database configured, skipping the journal.")
			} else if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP all journal tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "journal", false, "Clear the PostgreSQL sightings journal")
	resetCmd.Flags().BoolVar(&resetGallery, "samples", false, "Clear the gallery samples")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
