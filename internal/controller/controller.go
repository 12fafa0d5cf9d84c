// Package controller drives one capture session: detect, admit, capture, transform, infer, present.
package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"time"

	"github.com/andresmejia3/facegate/internal/admission"
	"github.com/andresmejia3/facegate/internal/detect"
	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/geometry"
	"github.com/andresmejia3/facegate/internal/inference"
	"github.com/andresmejia3/facegate/internal/log"
	"github.com/andresmejia3/facegate/internal/preprocess"
	"github.com/andresmejia3/facegate/internal/present"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

// ErrSourceEnded is returned when the frame stream closes before anything was captured.
var ErrSourceEnded = errors.New("capture source ended before a face was admitted")

// FrameSource supplies preview frames and full-resolution stills.
type FrameSource interface {
	Frames() <-chan types.FrameTask
	Still() (types.CapturedPhoto, error)
	Err() error
}

// Recorder persists capture history. store.Store satisfies it.
type Recorder interface {
	EnsureSession(ctx context.Context, sess store.Session) error
	InsertCapture(ctx context.Context, c store.Capture) error
}

// LoadFunc opens the inference session.
type LoadFunc func(ctx context.Context) (inference.Session, error)

// Config tunes a Controller.
type Config struct {
	Profile      preprocess.Profile
	PreviewWidth int
	// MaxCaptures bounds captures under the after-capture policy. Zero means unbounded.
	MaxCaptures int
	Policy      admission.RearmPolicy
	SessionID   string
	ModelPath   string
	Source      string
	// Progress receives the waiting spinner. Nil disables it.
	Progress io.Writer
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Source    FrameSource
	Detector  detect.Detector
	Gate      *admission.Gate
	Load      LoadFunc // nil runs capture without inference
	Gallery   gallery.Gallery
	Recorder  Recorder
	Presenter present.Presenter
}

// Controller runs the detect -> admit -> capture -> infer sequence in a single goroutine.
type Controller struct {
	cfg      Config
	deps     Deps
	pipeline *preprocess.Pipeline
	adapter  *inference.Adapter
	state    stateBox
}

// New builds a controller. Gallery, Recorder and Presenter may be nil.
func New(cfg Config, deps Deps) *Controller {
	if deps.Gallery == nil {
		deps.Gallery = gallery.Nop{}
	}
	if deps.Presenter == nil {
		deps.Presenter = present.NewTerminal()
	}
	if deps.Gate == nil {
		deps.Gate = admission.New(admission.Config{Policy: cfg.Policy, SettleDelay: admission.DefaultSettleDelay})
	}
	if cfg.PreviewWidth <= 0 {
		cfg.PreviewWidth = 640
	}
	return &Controller{cfg: cfg, deps: deps, pipeline: preprocess.New(cfg.Profile)}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	return c.state.snapshot()
}

func (c *Controller) setPhase(p Phase) {
	c.state.update(func(s *State) { s.Phase = p })
}

// syncPhase reports Settling until the gate arms, then Armed. It returns whether the gate is armed.
func (c *Controller) syncPhase(gate *admission.Gate) bool {
	if gate.State() == admission.Armed {
		c.setPhase(Armed)
		return true
	}
	c.setPhase(Settling)
	return false
}

func (c *Controller) fail(err error) error {
	c.state.update(func(s *State) {
		s.Phase = Failed
		s.LastError = err
	})
	return err
}

// load opens the model and registers the session. A model failure is fatal.
func (c *Controller) load(ctx context.Context) error {
	c.setPhase(Loading)
	if c.deps.Load != nil {
		sess, err := c.deps.Load(ctx)
		if err != nil {
			c.deps.Presenter.Notice("Failed to load model", err.Error())
			return c.fail(fmt.Errorf("failed to load model: %w", err))
		}
		adapter, err := inference.NewAdapter(sess)
		if err != nil {
			sess.Close()
			return c.fail(fmt.Errorf("failed to load model: %w", err))
		}
		c.adapter = adapter
		present.ModelLoaded(c.deps.Presenter, c.cfg.ModelPath)
		log.Info(log.Fields{"inputs": sess.InputNames(), "outputs": sess.OutputNames()}, "inference session ready")
	}

	if c.deps.Recorder != nil {
		err := c.deps.Recorder.EnsureSession(ctx, store.Session{
			ID:        c.cfg.SessionID,
			Profile:   c.cfg.Profile.Name,
			ModelPath: c.cfg.ModelPath,
			Source:    c.cfg.Source,
		})
		if err != nil {
			log.Warn(log.Fields{"error": err}, "capture history disabled")
			c.deps.Recorder = nil
		}
	}
	return nil
}

func (c *Controller) closeSession() {
	if c.adapter != nil {
		c.adapter.Session().Close()
		c.adapter = nil
	}
}

// Run consumes frames until the capture budget is spent, the source ends, or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.load(ctx); err != nil {
		return err
	}
	defer c.closeSession()

	gate := c.deps.Gate
	gate.SessionLoaded()
	c.syncPhase(gate)

	var bar *progressbar.ProgressBar
	if c.cfg.Progress != nil {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("🔎 Waiting for a face"),
			progressbar.OptionSetWriter(c.cfg.Progress),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	frames := c.deps.Source.Frames()
	var last admission.Decision
	for {
		var frame types.FrameTask
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok = <-frames:
		}
		if !ok {
			return c.sourceEnded()
		}
		c.state.update(func(s *State) { s.Frames++ })
		if bar != nil {
			bar.Add(1)
		}

		if !c.syncPhase(gate) {
			continue
		}

		faces, view, err := c.detect(ctx, frame)
		if errors.Is(err, detect.ErrUnavailable) {
			return c.fail(fmt.Errorf("face detection stopped: %w", err))
		}
		if err != nil {
			log.Warn(log.Fields{"frame": frame.Index, "error": err}, "detection failed")
			continue
		}

		decision := gate.Offer(faces)
		c.state.update(func(s *State) {
			s.Batches++
			s.LastDecision = decision
		})
		log.Debug(log.Fields{"frame": frame.Index, "faces": len(faces), "decision": decision}, "offered batch")
		if decision == admission.MultipleFaces && last != admission.MultipleFaces {
			present.MultipleFaces(c.deps.Presenter)
		}
		last = decision
		if decision != admission.Admitted {
			continue
		}

		if bar != nil {
			bar.Clear()
		}
		c.capture(ctx, faces[0], view)
		gate.CaptureComplete()

		if c.finished() {
			c.setPhase(Done)
			return nil
		}
		c.syncPhase(gate)
	}
}

func (c *Controller) sourceEnded() error {
	if err := c.deps.Source.Err(); err != nil {
		return c.fail(fmt.Errorf("capture source failed: %w", err))
	}
	if c.Snapshot().Captures == 0 {
		return c.fail(ErrSourceEnded)
	}
	c.setPhase(Done)
	return nil
}

func (c *Controller) finished() bool {
	captures := c.Snapshot().Captures
	if c.cfg.Policy != admission.RearmAfterCapture {
		return true
	}
	return c.cfg.MaxCaptures > 0 && captures >= c.cfg.MaxCaptures
}

// detect runs the detector on the downscaled preview and returns the view size it used.
func (c *Controller) detect(ctx context.Context, frame types.FrameTask) ([]types.DetectedFace, image.Rectangle, error) {
	img, _, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		return nil, image.Rectangle{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	preview := detect.Preview(img, c.cfg.PreviewWidth)
	faces, err := c.deps.Detector.Detect(ctx, preview)
	return faces, preview.Bounds(), err
}

// capture runs one admitted face through the pipeline. Failures are reported and recorded, never fatal.
func (c *Controller) capture(ctx context.Context, face types.DetectedFace, view image.Rectangle) {
	c.setPhase(Capturing)

	photo, err := c.deps.Source.Still()
	if err != nil {
		c.captureFailed(ctx, store.Capture{TakenAt: time.Now()}, fmt.Errorf("failed to capture still: %w", err))
		return
	}
	rec := store.Capture{
		ID:          photo.ID,
		TakenAt:     photo.TakenAt,
		TensorShape: c.cfg.Profile.Shape(),
	}

	rect, err := geometry.CropRect(face.Box, photo.PixelWidth, photo.PixelHeight, float64(view.Dx()), float64(view.Dy()))
	if err != nil {
		present.TransformFailed(c.deps.Presenter, err)
		c.captureFailed(ctx, rec, err)
		return
	}
	rec.Crop = []int32{int32(rect.Min.X), int32(rect.Min.Y), int32(rect.Max.X), int32(rect.Max.Y)}

	res, err := c.pipeline.Run(ctx, photo, rect)
	if err != nil {
		log.Error(log.Fields{"capture": photo.ID, "error": err}, "transform failed")
		present.TransformFailed(c.deps.Presenter, err)
		c.captureFailed(ctx, rec, err)
		return
	}

	rec.GalleryLocation = c.saveToGallery(ctx, photo.ID, res, rect)
	c.finish(ctx, rec, res)
}

// RunImage runs a still image through the pipeline without cropping or flipping.
func (c *Controller) RunImage(ctx context.Context, name string, data []byte) (*types.InferenceResult, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	defer c.closeSession()

	c.setPhase(Capturing)
	rec := store.Capture{ID: uuid.NewString(), TakenAt: time.Now(), TensorShape: c.cfg.Profile.Shape()}
	log.Debug(log.Fields{"capture": rec.ID, "image": name}, "running still image")
	res, err := c.pipeline.FromImage(ctx, data)
	if err != nil {
		present.TransformFailed(c.deps.Presenter, err)
		c.captureFailed(ctx, rec, err)
		return nil, c.fail(err)
	}
	b := res.Crop
	rec.Crop = []int32{int32(b.Min.X), int32(b.Min.Y), int32(b.Max.X), int32(b.Max.Y)}
	rec.GalleryLocation = c.saveToGallery(ctx, rec.ID, res, b)
	out := c.finish(ctx, rec, res)
	s := c.Snapshot()
	if s.LastError != nil && out == nil {
		return nil, c.fail(s.LastError)
	}
	c.setPhase(Done)
	return out, nil
}

// finish runs inference when a session is loaded, then presents and records the outcome.
func (c *Controller) finish(ctx context.Context, rec store.Capture, res *preprocess.Result) *types.InferenceResult {
	if c.adapter == nil {
		body := fmt.Sprintf("%v tensor ready", []int64(res.Tensor.Shape))
		if rec.GalleryLocation != "" {
			body += ", saved to " + rec.GalleryLocation
		}
		c.deps.Presenter.Notice("Photo captured", body)
		c.captureSucceeded(ctx, rec, nil)
		return nil
	}

	c.setPhase(Inferring)
	out, err := c.adapter.Infer(ctx, res.Tensor)
	if err != nil {
		if errors.Is(err, inference.ErrMissingOutput) {
			present.MissingOutput(c.deps.Presenter, c.adapter.Session().OutputNames()[0])
		} else {
			present.InferenceFailed(c.deps.Presenter, err)
		}
		log.Error(log.Fields{"capture": rec.ID, "error": err}, "inference failed")
		c.captureFailed(ctx, rec, err)
		return nil
	}

	present.InferenceOK(c.deps.Presenter, out)
	rec.OutputName = out.OutputName
	rec.OutputDims = out.Dims
	rec.OutputData = out.Data
	c.captureSucceeded(ctx, rec, out)
	return out
}

func (c *Controller) saveToGallery(ctx context.Context, id string, res *preprocess.Result, rect image.Rectangle) string {
	desc := fmt.Sprintf("facegate %s capture %s crop %v", c.cfg.Profile.Name, id, rect)
	loc, err := c.deps.Gallery.Save(ctx, id, res.JPEG, desc)
	switch {
	case errors.Is(err, gallery.ErrDisabled):
		return ""
	case err != nil:
		log.Warn(log.Fields{"capture": id, "error": err}, "gallery save failed")
		return ""
	}
	c.state.update(func(s *State) { s.Gallery = append(s.Gallery, loc) })
	return loc
}

func (c *Controller) captureSucceeded(ctx context.Context, rec store.Capture, out *types.InferenceResult) {
	c.state.update(func(s *State) {
		s.Captures++
		s.LastResult = out
		s.LastError = nil
	})
	c.record(ctx, rec)
}

func (c *Controller) captureFailed(ctx context.Context, rec store.Capture, err error) {
	c.state.update(func(s *State) {
		s.Captures++
		s.Failures++
		s.LastError = err
	})
	rec.Error = err.Error()
	c.record(ctx, rec)
}

func (c *Controller) record(ctx context.Context, rec store.Capture) {
	if c.deps.Recorder == nil || rec.ID == "" {
		return
	}
	rec.SessionID = c.cfg.SessionID
	if rec.Crop == nil {
		rec.Crop = []int32{}
	}
	if rec.TensorShape == nil {
		rec.TensorShape = []int64{}
	}
	if err := c.deps.Recorder.InsertCapture(ctx, rec); err != nil {
		log.Warn(log.Fields{"capture": rec.ID, "error": err}, "failed to record capture")
	}
}
