package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facegate/internal/inference"
	"github.com/andresmejia3/facegate/internal/preprocess"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var (
	inspectOrtLib  string
	inspectProfile string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <model_path>",
	Short: "Print a model's input and output names and dimensions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runInspect(args[0])
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectOrtLib, "ort-lib", "", "onnxruntime shared library (default: ORT_LIB_PATH or platform name)")
	inspectCmd.Flags().StringVarP(&inspectProfile, "profile", "p", "", "Check the first input against this profile's tensor shape")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(modelPath string) error {
	lib := inspectOrtLib
	if lib == "" {
		lib = inference.DefaultLibraryPath()
	}
	inputs, outputs, err := inference.Inspect(lib, modelPath)
	if err != nil {
		utils.ShowError("Failed to read model", err, nil)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tDIMS")
	fmt.Fprintln(w, "----\t----\t----")
	for _, in := range inputs {
		fmt.Fprintf(w, "input\t%s\t%v\n", in.Name, []int64(in.Dims))
	}
	for _, out := range outputs {
		fmt.Fprintf(w, "output\t%s\t%v\n", out.Name, []int64(out.Dims))
	}
	w.Flush()

	if inspectProfile == "" || len(inputs) == 0 {
		return nil
	}
	profile, err := preprocess.LookupProfile(inspectProfile)
	if err != nil {
		return err
	}
	if err := inference.ValidateShape(inputs[0].Dims, profile.Shape()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Profile %s does not fit %s: %v\n", profile.Name, inputs[0].Name, err)
		return err
	}
	fmt.Fprintf(os.Stderr, "✅ Profile %s fits %s\n", profile.Name, inputs[0].Name)
	return nil
}
