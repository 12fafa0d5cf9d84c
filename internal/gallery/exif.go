package gallery

import (
	"bytes"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
	goexif "github.com/rwcarlsen/goexif/exif"
)

func setExifTag(rootIB *exif.IfdBuilder, ifdPath, tagName, tagValue string) error {
	ifdIb, err := exif.GetOrCreateIbFromRootIb(rootIB, ifdPath)
	if err != nil {
		return fmt.Errorf("failed to get or create IB: %w", err)
	}

	if err := ifdIb.SetStandardWithName(tagName, tagValue); err != nil {
		return fmt.Errorf("failed to set tag '%s': %w", tagName, err)
	}

	return nil
}

// software marks files written by facegate; Clear only removes files carrying it.
const software = "facegate"

// StampDescription writes description into IFD0/ImageDescription and tags IFD0/Software,
// creating the EXIF block when the JPEG has none. An empty description only sets the Software tag.
func StampDescription(data []byte, description string) ([]byte, error) {
	intfc, err := jpegstructure.NewJpegMediaParser().ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JPEG: %w", err)
	}
	sl := intfc.(*jpegstructure.SegmentList)

	rootIb, err := sl.ConstructExifBuilder()
	if err != nil {
		im, err := exifcommon.NewIfdMappingWithStandard()
		if err != nil {
			return nil, fmt.Errorf("failed to create IFD mapping: %w", err)
		}
		ti := exif.NewTagIndex()
		if err := exif.LoadStandardTags(ti); err != nil {
			return nil, fmt.Errorf("failed to load standard tags: %w", err)
		}
		rootIb = exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder)
	}

	if err := setExifTag(rootIb, "IFD0", "Software", software); err != nil {
		return nil, err
	}
	if description != "" {
		if err := setExifTag(rootIb, "IFD0", "ImageDescription", description); err != nil {
			return nil, err
		}
	}
	if err := sl.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("failed to set EXIF: %w", err)
	}

	b := new(bytes.Buffer)
	if err := sl.Write(b); err != nil {
		return nil, fmt.Errorf("failed to write JPEG: %w", err)
	}
	return b.Bytes(), nil
}

// ReadDescription returns the IFD0/ImageDescription stamped into a JPEG.
func ReadDescription(data []byte) (string, error) {
	return readTag(data, goexif.ImageDescription)
}

// IsStamped reports whether the JPEG was written by a facegate gallery.
func IsStamped(data []byte) bool {
	s, err := readTag(data, goexif.Software)
	return err == nil && s == software
}

func readTag(data []byte, name goexif.FieldName) (string, error) {
	x, err := goexif.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode EXIF: %w", err)
	}
	tag, err := x.Get(name)
	if err != nil {
		return "", err
	}
	return tag.StringVal()
}
