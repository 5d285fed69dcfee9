package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/identity"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <identity> <new_name>",
	Short: "Rename an identity in the gallery and the sightings journal",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRename(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, from, name string) error {
	to := identity.Sanitize(name)
	if to != name {
		fmt.Fprintf(os.Stderr, "ℹ️  Using sanitized name '%s'\n", to)
	}

	g, err := gallery.Open(Cfg.GalleryDir)
	if err != nil {
		utils.ShowError("Failed to open gallery", err, nil)
		return err
	}

	moved, err := g.Rename(from, to)
	if err != nil {
		utils.ShowError("Failed to rename identity", err, nil)
		return err
	}
	if moved == 0 {
		err := errors.New("no samples found for " + from)
		utils.ShowError("Unknown identity", err, nil)
		return err
	}

	if DB != nil {
		rows, err := DB.RenameIdentity(cmd.Context(), from, to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Gallery renamed but the journal was not: %v\n", err)
		} else if rows > 0 {
			fmt.Fprintf(os.Stderr, "🗄️  Updated %d journal rows\n", rows)
		}
	}

	fmt.Printf("✅ Identity '%s' renamed to '%s' (%d samples)\n", from, to, moved)
	return nil
}
