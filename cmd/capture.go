package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/andresmejia3/facegate/internal/admission"
	"github.com/andresmejia3/facegate/internal/camera"
	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/controller"
	"github.com/andresmejia3/facegate/internal/detect"
	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/inference"
	"github.com/andresmejia3/facegate/internal/log"
	"github.com/andresmejia3/facegate/internal/permission"
	"github.com/andresmejia3/facegate/internal/preprocess"
	"github.com/andresmejia3/facegate/internal/present"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/worker"
	"github.com/spf13/cobra"
)

// bindCaptureFlags registers the flags shared by the live capture screens.
func bindCaptureFlags(cmd *cobra.Command, opts *config.Options) {
	f := cmd.Flags()
	f.StringVarP(&opts.Input, "input", "i", "/dev/video0", "Camera device or video file")
	f.BoolVar(&opts.Realtime, "realtime", false, "Pace file inputs at their native frame rate")
	f.Float64VarP(&opts.Threshold, "threshold", "t", opts.Threshold, "Eye-open probability both eyes must exceed")
	f.DurationVar(&opts.SettleDelay, "settle", opts.SettleDelay, "Delay between model load and the first admissible detection")
	f.StringVar(&opts.Rearm, "rearm", opts.Rearm, "Re-arm policy after a capture: never, after-capture")
	f.IntVar(&opts.MaxCaptures, "max-captures", 0, "Stop after this many captures under --rearm after-capture (0 = until interrupted)")
	f.IntVar(&opts.PreviewWidth, "preview-width", opts.PreviewWidth, "Width frames are downscaled to before detection")
	f.DurationVar(&opts.MinInterval, "min-interval", opts.MinInterval, "Minimum time between detection frames")
	f.StringVar(&opts.Detector, "detector", opts.Detector, "Face detector: pigo, worker")
	f.StringVar(&opts.FacefinderPath, "facefinder", "", "pigo facefinder cascade (default: FACEGATE_FACEFINDER)")
	f.StringVar(&opts.PuplocPath, "puploc", "", "pigo puploc cascade for eye detection (default: FACEGATE_PUPLOC)")
	f.StringVar(&opts.DetectorCmd, "detector-cmd", "", "External detector command for --detector worker")
	f.DurationVar(&opts.WorkerTimeout, "worker-timeout", opts.WorkerTimeout, "Per-frame reply timeout for the detector worker")
	bindGalleryFlags(cmd, opts)
}

func bindModelFlags(cmd *cobra.Command, opts *config.Options) {
	cmd.Flags().StringVarP(&opts.ModelPath, "model", "m", "", "ONNX model file")
	cmd.Flags().StringVar(&opts.OrtLibPath, "ort-lib", "", "onnxruntime shared library (default: ORT_LIB_PATH or platform name)")
}

func bindGalleryFlags(cmd *cobra.Command, opts *config.Options) {
	f := cmd.Flags()
	f.StringVar(&opts.GalleryDir, "gallery-dir", "", "Save captured crops to this directory (default: FACEGATE_GALLERY_DIR)")
	f.StringVar(&opts.BlobContainer, "blob-container", "", "Upload captured crops to this Azure container (default: AZURE_STORAGE_CONTAINER)")
	f.StringVar(&opts.BlobAccountURL, "blob-account-url", "", "Azure storage account URL (default: AZURE_STORAGE_ACCOUNT_URL)")
	f.StringVar(&opts.BlobPrefix, "blob-prefix", "", "Blob name prefix")
}

// validateCaptureFlags ensures all CLI arguments are valid before starting heavy processes.
func validateCaptureFlags(opts *config.Options) error {
	if !utils.IsDevice(opts.Input) {
		info, err := os.Stat(opts.Input)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("input file does not exist: %w", err)
			}
			return fmt.Errorf("unable to access input file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("input path %s is a directory, expected a video file or device", opts.Input)
		}
	}
	if _, err := preprocess.LookupProfile(opts.Profile); err != nil {
		return err
	}
	return opts.Validate()
}

// openGallery picks the blob gallery when a container is configured, else the local directory.
func openGallery(opts *config.Options, grant permission.Grant) gallery.Gallery {
	if opts.BlobContainer != "" {
		g, err := gallery.NewBlobGallery(gallery.BlobConfig{
			AccountURL:       opts.BlobAccountURL,
			ConnectionString: opts.BlobConnectionString,
			Container:        opts.BlobContainer,
			Prefix:           opts.BlobPrefix,
			ClientID:         opts.BlobClientID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Blob gallery disabled: %v\n", err)
			return gallery.Nop{}
		}
		fmt.Fprintf(os.Stderr, "☁️  Saving captures to container %s\n", opts.BlobContainer)
		return g
	}
	if opts.GalleryDir == "" {
		return gallery.Nop{}
	}
	if !grant.MediaLibrary {
		fmt.Fprintf(os.Stderr, "⚠️  No access to gallery %s: %v\n", opts.GalleryDir, grant.Reasons["media"])
		return gallery.Nop{}
	}
	g, err := gallery.NewDirGallery(opts.GalleryDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Gallery disabled: %v\n", err)
		return gallery.Nop{}
	}
	fmt.Fprintf(os.Stderr, "🖼️  Saving captures to %s\n", opts.GalleryDir)
	return g
}

// openDetector builds the configured detector. The returned closer may be nil.
func openDetector(ctx context.Context, opts *config.Options) (detect.Detector, io.Closer, error) {
	switch opts.Detector {
	case "worker":
		parts := strings.Fields(opts.DetectorCmd)
		if len(parts) == 0 {
			return nil, nil, fmt.Errorf("--detector-cmd is required for --detector worker")
		}
		w, err := worker.NewDetectorWorker(ctx, 0, parts[0], parts[1:], opts.WorkerTimeout)
		if err != nil {
			return nil, nil, err
		}
		return w, w, nil
	default:
		d, err := detect.NewPigoDetector(detect.DefaultPigoConfig(), opts.FacefinderPath, opts.PuplocPath)
		if err != nil {
			return nil, nil, err
		}
		if opts.PuplocPath == "" {
			fmt.Fprintln(os.Stderr, "⚠️  No puploc cascade: eye-open probabilities will be 0 and nothing will be admitted")
		}
		return d, nil, nil
	}
}

func onnxLoader(opts *config.Options) controller.LoadFunc {
	lib := opts.OrtLibPath
	if lib == "" {
		lib = inference.DefaultLibraryPath()
	}
	return func(ctx context.Context) (inference.Session, error) {
		return inference.LoadOnnx(lib, opts.ModelPath)
	}
}

// runCapture orchestrates one live capture screen: permissions, camera, detector, model, controller.
func runCapture(ctx context.Context, opts config.Options) error {
	opts.ApplyEnv()
	if err := validateCaptureFlags(&opts); err != nil {
		utils.ShowError("Invalid options", err, nil)
		return err
	}
	profile, _ := preprocess.LookupProfile(opts.Profile)
	policy, _ := admission.ParseRearmPolicy(opts.Rearm)

	grant, err := permission.Gate{Input: opts.Input, GalleryDir: opts.GalleryDir}.Request(ctx)
	if err != nil {
		return err
	}
	if !grant.Camera {
		fmt.Fprintln(os.Stderr, "🚫 No access to camera")
		return nil
	}
	gal := openGallery(&opts, grant)

	sourceID, err := utils.GenerateSourceID(opts.Input)
	if err != nil {
		utils.ShowError("Failed to identify input", err, nil)
		return err
	}
	sessionID := fmt.Sprintf("%s-%s", sourceID[:12], time.Now().UTC().Format("20060102T150405"))

	det, closer, err := openDetector(ctx, &opts)
	if err != nil {
		utils.ShowError("Failed to start face detector", err, nil)
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	fmt.Fprintf(os.Stderr, "📷 Opening %s\n", opts.Input)
	src, err := camera.Open(ctx, camera.Options{
		Input:       opts.Input,
		Realtime:    opts.Realtime,
		MinInterval: opts.MinInterval,
	})
	if err != nil {
		utils.ShowError("Failed to open camera", err, nil)
		return err
	}

	var load controller.LoadFunc
	if !opts.SkipInference {
		fmt.Fprintf(os.Stderr, "🧠 Loading model %s (profile %s, input %v)\n", opts.ModelPath, profile.Name, []int64(profile.Shape()))
		load = onnxLoader(&opts)
	}

	deps := controller.Deps{
		Source:   src,
		Detector: det,
		Gate: admission.New(admission.Config{
			Threshold:   opts.Threshold,
			SettleDelay: opts.SettleDelay,
			Policy:      policy,
		}),
		Load:      load,
		Gallery:   gal,
		Presenter: present.NewTerminal(),
	}
	if DB != nil {
		deps.Recorder = DB
	}

	ctrl := controller.New(controller.Config{
		Profile:      profile,
		PreviewWidth: opts.PreviewWidth,
		MaxCaptures:  opts.MaxCaptures,
		Policy:       policy,
		SessionID:    sessionID,
		ModelPath:    opts.ModelPath,
		Source:       opts.Input,
		Progress:     os.Stderr,
	}, deps)

	start := time.Now()
	runErr := ctrl.Run(ctx)
	closeErr := src.Close()
	read, dropped := src.Stats()
	snap := ctrl.Snapshot()

	switch {
	case errors.Is(runErr, context.Canceled):
		fmt.Fprintln(os.Stderr, "\n🛑 Capture cancelled")
	case runErr != nil:
		utils.ShowError("Capture failed", runErr, src.Command())
		return runErr
	case closeErr != nil && !errors.Is(ctx.Err(), context.Canceled):
		log.Warn(log.Fields{"error": closeErr}, "ffmpeg exited with an error")
	}

	printCaptureSummary(os.Stderr, snap, read, dropped, time.Since(start))
	return nil
}

func printCaptureSummary(w io.Writer, s controller.State, read, dropped int, elapsed time.Duration) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 CAPTURE SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "🎞️  Frames read:        %d (%d dropped)\n", read, dropped)
	fmt.Fprintf(w, "👁️  Batches offered:    %d\n", s.Batches)
	fmt.Fprintf(w, "📸 Captures:           %d (%d failed)\n", s.Captures, s.Failures)
	for _, loc := range s.Gallery {
		fmt.Fprintf(w, "   saved %s\n", loc)
	}
	fmt.Fprintf(w, "⏱️  Elapsed:            %s\n", utils.FmtDuration(elapsed))
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}
