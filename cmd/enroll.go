package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/vigil/internal/enroll"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var enrollImage string

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Add the face in a photo to the gallery and retrain",
	Long: `Detects the first face in the given image, saves it to the gallery under the
sanitized name and retrains the recognizer. While 'vigil live' is running,
enroll from the live feed with POST /api/v1/enroll instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd, args[0], enrollImage)
	},
}

func init() {
	enrollCmd.Flags().StringVarP(&enrollImage, "image", "i", "", "Path to a photo containing the face (required)")
	enrollCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, name, imagePath string) error {
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

	var recorder enroll.Recorder
	if DB != nil {
		recorder = DB.Session(uuid.Nil)
	}

	fmt.Fprintln(os.Stderr, "📸 Enrolling face...")
	res, err := enroll.New(eng.gallery, eng.detector, eng.trainer, nil, recorder).EnrollFrame(cmd.Context(), name, frame)
	if err != nil {
		utils.ShowError(describeError(err), err, nil)
		return err
	}

	fmt.Printf("✅ Saved %s as '%s' (sample #%d)\n", res.Path, res.Identity, res.Index)
	fmt.Printf("🧠 Recognizer knows %d identities\n", res.Labels)
	return nil
}
