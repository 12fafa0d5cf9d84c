package cmd

import (
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/spf13/cobra"
)

var integratedOpts = config.Defaults()

var integratedCmd = &cobra.Command{
	Use:   "integrated",
	Short: "Capture one open-eyed face and run it through the model (RGB 256x256)",
	Long: `Streams the camera, waits for exactly one face with both eyes open, crops the full
resolution still around it, mirrors and resizes it to 256x256 and runs the model on a
[1,3,256,256] tensor.`,
	Annotations: map[string]string{dbAnnotation: dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runCapture(cmd.Context(), integratedOpts)
	},
}

func init() {
	bindCaptureFlags(integratedCmd, &integratedOpts)
	bindModelFlags(integratedCmd, &integratedOpts)
	integratedCmd.Flags().StringVarP(&integratedOpts.Profile, "profile", "p", "rgb256", "Preprocessing profile: rgb256, gray28")
	rootCmd.AddCommand(integratedCmd)
}
