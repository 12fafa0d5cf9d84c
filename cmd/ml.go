package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/controller"
	"github.com/andresmejia3/facegate/internal/permission"
	"github.com/andresmejia3/facegate/internal/preprocess"
	"github.com/andresmejia3/facegate/internal/present"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var mlOpts = config.Defaults()

var mlCmd = &cobra.Command{
	Use:         "ml <image_path>",
	Short:       "Run the model on an image file (no face crop)",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{dbAnnotation: dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		mlOpts.Input = args[0]
		return runML(cmd.Context(), mlOpts)
	},
}

func init() {
	bindModelFlags(mlCmd, &mlOpts)
	bindGalleryFlags(mlCmd, &mlOpts)
	mlCmd.Flags().StringVarP(&mlOpts.Profile, "profile", "p", "rgb256", "Preprocessing profile: rgb256, gray28")
	rootCmd.AddCommand(mlCmd)
}

func runML(ctx context.Context, opts config.Options) error {
	opts.ApplyEnv()
	if err := opts.ValidateFields("Input", "ModelPath", "Profile"); err != nil {
		utils.ShowError("Invalid options", err, nil)
		return err
	}
	if _, err := os.Stat(opts.Input); os.IsNotExist(err) {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}
	profile, err := preprocess.LookupProfile(opts.Profile)
	if err != nil {
		return err
	}

	grant, err := permission.Gate{Input: opts.Input, GalleryDir: opts.GalleryDir}.Request(ctx)
	if err != nil {
		return err
	}
	if !grant.Camera {
		utils.ShowError("Unable to read image", grant.Reasons["camera"], nil)
		return grant.Reasons["camera"]
	}

	data, err := os.ReadFile(opts.Input)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "🧠 Loading model %s (profile %s, input %v)\n", opts.ModelPath, profile.Name, []int64(profile.Shape()))
	deps := controller.Deps{
		Load:      onnxLoader(&opts),
		Gallery:   openGallery(&opts, grant),
		Presenter: present.NewTerminal(),
	}
	if DB != nil {
		deps.Recorder = DB
	}
	ctrl := controller.New(controller.Config{
		Profile:   profile,
		SessionID: "ml-" + uuid.NewString()[:8],
		ModelPath: opts.ModelPath,
		Source:    opts.Input,
	}, deps)

	if _, err := ctrl.RunImage(ctx, filepath.Base(opts.Input), data); err != nil {
		utils.ShowError("Inference failed", err, nil)
		return err
	}
	return nil
}
