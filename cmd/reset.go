package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB         bool
	resetGallery    bool
	resetGalleryDir string
	resetYes        bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset system state (capture history, local gallery)",
	Long:        "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Annotations: map[string]string{dbAnnotation: dbOptional},
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetGallery {
			resetDB = true
			resetGallery = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			switch {
			case DB == nil:
				fmt.Fprintln(os.Stderr, "⚠️  No database configured, skipping history.")
			case confirm(reader, "⚠️  Are you sure you want to DROP all capture history tables?"):
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetGallery {
			dir := resetGalleryDir
			if dir == "" {
				dir = os.Getenv("FACEGATE_GALLERY_DIR")
			}
			switch {
			case dir == "":
				fmt.Fprintln(os.Stderr, "⚠️  No gallery directory configured, skipping gallery.")
			case confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete every facegate capture in %s?", dir)):
				fmt.Println("🗑️  Clearing Gallery...")
				n, err := (&gallery.DirGallery{Dir: dir}).Clear()
				if err != nil {
					fmt.Fprintf(os.Stderr, "⚠️  Failed to clear %s: %v\n", dir, err)
				}
				fmt.Printf("   removed %d captures\n", n)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "history", false, "Clear PostgreSQL capture history")
	resetCmd.Flags().BoolVar(&resetGallery, "gallery", false, "Clear the local gallery directory")
	resetCmd.Flags().StringVar(&resetGalleryDir, "gallery-dir", "", "Gallery directory to clear (default: FACEGATE_GALLERY_DIR)")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
