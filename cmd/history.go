package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/present"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyVerify bool
)

var historyCmd = &cobra.Command{
	Use:         "history [capture-id]",
	Short:       "List recorded captures, newest first, or show one capture in full",
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if len(args) == 1 {
			c, err := DB.GetCapture(cmd.Context(), args[0])
			if err != nil {
				utils.ShowError("Failed to look up capture", err, nil)
				return err
			}
			if c == nil {
				return fmt.Errorf("no capture with id %q", args[0])
			}
			printCapture(os.Stdout, c, historyVerify)
			return nil
		}
		captures, err := DB.ListCaptures(cmd.Context(), historyLimit)
		if err != nil {
			utils.ShowError("Failed to list captures", err, nil)
			return err
		}
		printHistory(os.Stdout, captures, historyVerify)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of captures to show")
	historyCmd.Flags().BoolVar(&historyVerify, "verify", false, "Read back the EXIF description of locally saved crops")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(out io.Writer, captures []store.Capture, verify bool) {
	if len(captures) == 0 {
		fmt.Fprintln(out, "No captures recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tTAKEN\tSHAPE\tRESULT\tGALLERY")
	fmt.Fprintln(w, "--\t-------\t-----\t-----\t------\t-------")

	for _, c := range captures {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			shortID(c.ID), c.SessionID, c.TakenAt.Local().Format("2006-01-02 15:04:05"),
			c.TensorShape, resultCell(c), galleryCell(c.GalleryLocation, verify))
	}
	w.Flush()
}

func printCapture(out io.Writer, c *store.Capture, verify bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", c.ID)
	fmt.Fprintf(w, "Session:\t%s\n", c.SessionID)
	fmt.Fprintf(w, "Taken:\t%s\n", c.TakenAt.Local().Format("2006-01-02 15:04:05"))
	if len(c.Crop) == 4 {
		fmt.Fprintf(w, "Crop:\t(%d,%d)-(%d,%d)\n", c.Crop[0], c.Crop[1], c.Crop[2], c.Crop[3])
	}
	fmt.Fprintf(w, "Tensor:\t%v\n", c.TensorShape)
	if c.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", c.Error)
	} else if c.OutputName != "" {
		fmt.Fprintf(w, "Output:\t%s %v\n", c.OutputName, c.OutputDims)
		fmt.Fprintf(w, "Values:\t%s\n", present.FormatValues(c.OutputData, 64))
	}
	fmt.Fprintf(w, "Gallery:\t%s\n", galleryCell(c.GalleryLocation, verify))
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func resultCell(c store.Capture) string {
	if c.Error != "" {
		return "error: " + c.Error
	}
	if c.OutputName == "" {
		return "-"
	}
	return fmt.Sprintf("%s %v %s", c.OutputName, c.OutputDims, present.FormatValues(c.OutputData, 4))
}

func galleryCell(loc string, verify bool) string {
	if loc == "" {
		return "-"
	}
	if !verify || strings.HasPrefix(loc, "https://") {
		return loc
	}
	data, err := os.ReadFile(loc)
	if err != nil {
		return loc + " (missing)"
	}
	desc, err := gallery.ReadDescription(data)
	if err != nil {
		return loc + " (no description)"
	}
	return fmt.Sprintf("%s (%s)", loc, desc)
}
