// Package preprocess turns a captured still into the tensor a network consumes.
package preprocess

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"github.com/andresmejia3/facegate/internal/types"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Pipeline steps, in execution order.
const (
	StepDecodePhoto  = "decode-photo"
	StepCrop         = "crop"
	StepFlip         = "flip"
	StepResize       = "resize"
	StepEncodeJPEG   = "encode-jpeg"
	StepDecodeBase64 = "decode-base64"
	StepDecodeJPEG   = "decode-jpeg"
	StepFlatten      = "flatten"
)

// StepError names the pipeline step that aborted the run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("preprocess %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// ErrEmptyCrop is returned when the crop rectangle misses the photo.
var ErrEmptyCrop = errors.New("crop rectangle does not intersect the photo")

// Result carries the tensor plus the transformed JPEG it was decoded from.
type Result struct {
	Tensor types.PreprocessedTensor
	JPEG   []byte
	Base64 string
	Crop   image.Rectangle
}

// Pipeline runs the capture-to-tensor steps for one profile.
type Pipeline struct {
	Profile Profile
}

// New returns a pipeline for the profile.
func New(p Profile) *Pipeline {
	return &Pipeline{Profile: p}
}

// Run crops the photo to rect, flips, resizes, round-trips through JPEG/base64 and flattens.
// Steps run strictly in sequence; the first failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, photo types.CapturedPhoto, rect image.Rectangle) (*Result, error) {
	src, err := p.decodePhoto(ctx, photo.Data)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, src, rect, p.Profile.Flip)
}

// FromImage skips the crop and flip; it is used for stills that are not face-anchored.
func (p *Pipeline) FromImage(ctx context.Context, data []byte) (*Result, error) {
	src, err := p.decodePhoto(ctx, data)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, src, src.Bounds(), false)
}

func (p *Pipeline) decodePhoto(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepDecodePhoto, Err: err}
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &StepError{Step: StepDecodePhoto, Err: err}
	}
	return src, nil
}

func (p *Pipeline) run(ctx context.Context, src image.Image, rect image.Rectangle, flip bool) (*Result, error) {
	var img image.Image = src

	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepCrop, Err: err}
	}
	rect = rect.Intersect(src.Bounds())
	if rect.Empty() {
		return nil, &StepError{Step: StepCrop, Err: ErrEmptyCrop}
	}
	img = imaging.Crop(img, rect)

	if flip {
		if err := ctx.Err(); err != nil {
			return nil, &StepError{Step: StepFlip, Err: err}
		}
		img = imaging.FlipH(img)
	}

	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepResize, Err: err}
	}
	img = p.resize(img)

	if err := ctx.Err(); err != nil {
		return nil, &StepError{Step: StepEncodeJPEG, Err: err}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality()}); err != nil {
		return nil, &StepError{Step: StepEncodeJPEG, Err: err}
	}
	b64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, &StepError{Step: StepDecodeBase64, Err: err}
	}

	decoded, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &StepError{Step: StepDecodeJPEG, Err: err}
	}

	tensor, err := Flatten(decoded, p.Profile)
	if err != nil {
		return nil, &StepError{Step: StepFlatten, Err: err}
	}

	return &Result{Tensor: tensor, JPEG: raw, Base64: b64, Crop: rect}, nil
}

func (p *Pipeline) quality() int {
	if p.Profile.Quality <= 0 {
		return jpeg.DefaultQuality
	}
	return p.Profile.Quality
}

func (p *Pipeline) resize(img image.Image) image.Image {
	size := p.Profile.Size
	var out image.Image
	if p.Profile.Resampler == Bilinear {
		dst := image.NewNRGBA(image.Rect(0, 0, size, size))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		out = dst
	} else {
		out = imaging.Resize(img, size, size, imaging.Linear)
	}
	if p.Profile.Channels == 1 {
		gray := image.NewGray(out.Bounds())
		draw.Draw(gray, gray.Bounds(), out, out.Bounds().Min, draw.Src)
		return gray
	}
	return out
}

// Flatten converts a decoded image into raw 0-255 float values in the profile's layout.
func Flatten(img image.Image, p Profile) (types.PreprocessedTensor, error) {
	b := img.Bounds()
	if b.Dx() != p.Size || b.Dy() != p.Size {
		return types.PreprocessedTensor{}, fmt.Errorf("image is %dx%d, profile %s wants %dx%d", b.Dx(), b.Dy(), p.Name, p.Size, p.Size)
	}
	if p.Channels != 1 && p.Channels != 3 {
		return types.PreprocessedTensor{}, fmt.Errorf("unsupported channel count %d", p.Channels)
	}

	shape := p.Shape()
	data := make([]float32, shape.Size())
	plane := p.Size * p.Size

	for y := 0; y < p.Size; y++ {
		for x := 0; x < p.Size; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			px := y*p.Size + x

			if p.Channels == 1 {
				data[px] = float32(color.GrayModel.Convert(c).(color.Gray).Y)
				continue
			}

			rgb := color.NRGBAModel.Convert(c).(color.NRGBA)
			vals := [3]float32{float32(rgb.R), float32(rgb.G), float32(rgb.B)}
			for ch, v := range vals {
				if p.Layout == NHWC {
					data[px*3+ch] = v
				} else {
					data[ch*plane+px] = v
				}
			}
		}
	}

	return types.PreprocessedTensor{Shape: shape, Data: data}, nil
}
