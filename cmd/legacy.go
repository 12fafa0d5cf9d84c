package cmd

import (
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/spf13/cobra"
)

var legacyOpts = config.Defaults()

var legacyCmd = &cobra.Command{
	Use:         "legacy",
	Short:       "Capture flow with the grayscale 28x28 profile",
	Long:        "Same flow as integrated, but the crop is resized bilinearly to 28x28 grayscale and fed as [1,1,28,28].",
	Annotations: map[string]string{dbAnnotation: dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		legacyOpts.Profile = "gray28"
		return runCapture(cmd.Context(), legacyOpts)
	},
}

func init() {
	bindCaptureFlags(legacyCmd, &legacyOpts)
	bindModelFlags(legacyCmd, &legacyOpts)
	rootCmd.AddCommand(legacyCmd)
}
