package cmd

import (
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/spf13/cobra"
)

var cameraOpts = config.Defaults()

var cameraCmd = &cobra.Command{
	Use:         "camera",
	Short:       "Capture one open-eyed face to the gallery without running a model",
	Annotations: map[string]string{dbAnnotation: dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cameraOpts.SkipInference = true
		return runCapture(cmd.Context(), cameraOpts)
	},
}

func init() {
	bindCaptureFlags(cameraCmd, &cameraOpts)
	cameraCmd.Flags().StringVarP(&cameraOpts.Profile, "profile", "p", "rgb256", "Preprocessing profile for the saved crop: rgb256, gray28")
	rootCmd.AddCommand(cameraCmd)
}
