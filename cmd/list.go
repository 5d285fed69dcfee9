package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/store"
	"github.com/andresmejia3/vigil/internal/tracker"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all identities in the gallery",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command) error {
	g, err := gallery.Open(Cfg.GalleryDir)
	if err != nil {
		utils.ShowError("Failed to open gallery", err, nil)
		return err
	}
	names, counts, err := g.Identities()
	if err != nil {
		utils.ShowError("Failed to list identities", err, nil)
		return err
	}

	if len(names) == 0 {
		fmt.Printf("No identities found in %s.\n", g.Dir())
		return nil
	}

	stats := make(map[string]store.IdentityStats)
	if DB != nil {
		summary, err := DB.Summary(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to load sightings: %v\n", err)
		}
		for _, s := range summary {
			stats[s.Identity] = s
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LABEL\tNAME\tSAMPLES\tSIGHTINGS\tTIME SEEN\tLAST SEEN")
	fmt.Fprintln(w, "-----\t----\t-------\t---------\t---------\t---------")

	// Trained labels are assigned in gallery order, unreadable samples included.
	for label, name := range names {
		st, ok := stats[name]
		seen, last := "-", "-"
		if ok && st.Sightings > 0 {
			seen = tracker.FmtDuration(st.Seen)
			last = st.LastSeen.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\n", label, name, counts[name], st.Sightings, seen, last)
	}
	w.Flush()
	return nil
}
