package preprocess

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andresmejia3/facegate/internal/types"
)

// Layout is the memory order of the flattened tensor.
type Layout string

const (
	NCHW Layout = "nchw"
	NHWC Layout = "nhwc"
)

// Resampler selects the resize implementation.
type Resampler string

const (
	Linear   Resampler = "linear"   // imaging.Linear
	Bilinear Resampler = "bilinear" // x/image/draw BiLinear
)

// Profile describes the fixed input a network expects.
type Profile struct {
	Name      string
	Size      int // square edge in pixels
	Channels  int // 3 (RGB) or 1 (grayscale)
	Flip      bool
	Layout    Layout
	Resampler Resampler
	Quality   int // JPEG quality for the round trip
}

// Shape returns the batch-of-one tensor shape for the profile.
func (p Profile) Shape() types.Shape {
	s, c := int64(p.Size), int64(p.Channels)
	if p.Layout == NHWC {
		return types.Shape{1, s, s, c}
	}
	return types.Shape{1, c, s, s}
}

var profiles = map[string]Profile{
	"rgb256": {Name: "rgb256", Size: 256, Channels: 3, Flip: true, Layout: NCHW, Resampler: Linear, Quality: 90},
	"gray28": {Name: "gray28", Size: 28, Channels: 1, Flip: true, Layout: NCHW, Resampler: Bilinear, Quality: 90},
}

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames lists the built-in profiles in a stable order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
