package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Options holds shared configuration for the capture subcommands.
type Options struct {
	Input    string `validate:"required"`
	Realtime bool

	ModelPath     string `validate:"required_unless=SkipInference true"`
	OrtLibPath    string
	SkipInference bool

	Profile     string        `validate:"required,oneof=rgb256 gray28"`
	Threshold   float64       `validate:"gte=0,lt=1"`
	SettleDelay time.Duration `validate:"gte=0"`
	Rearm       string        `validate:"oneof=never after-capture"`
	MaxCaptures int           `validate:"gte=0"`

	PreviewWidth int           `validate:"gte=32,lte=4096"`
	MinInterval  time.Duration `validate:"gte=0"`

	Detector       string `validate:"oneof=pigo worker"`
	FacefinderPath string `validate:"required_if=Detector pigo"`
	PuplocPath     string
	DetectorCmd    string        `validate:"required_if=Detector worker"`
	WorkerTimeout  time.Duration `validate:"gt=0"`

	GalleryDir           string
	BlobAccountURL       string
	BlobConnectionString string
	BlobContainer        string
	BlobPrefix           string
	BlobClientID         string
}

// Defaults returns the baseline capture configuration.
func Defaults() Options {
	return Options{
		Profile:       "rgb256",
		Threshold:     0.99,
		SettleDelay:   2 * time.Second,
		Rearm:         "never",
		PreviewWidth:  640,
		MinInterval:   100 * time.Millisecond,
		Detector:      "pigo",
		WorkerTimeout: 10 * time.Second,
	}
}

var validate = validator.New()

// Validate checks ranges and enums and reports every failing field.
func (o *Options) Validate() error {
	return describe(validate.Struct(o))
}

// ValidateFields checks only the named fields, for screens that ignore the rest.
func (o *Options) ValidateFields(fields ...string) error {
	return describe(validate.StructPartial(o, fields...))
}

func describe(err error) error {
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid options: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// ApplyEnv fills unset fields from the environment.
func (o *Options) ApplyEnv() {
	setIfEmpty(&o.OrtLibPath, "ORT_LIB_PATH")
	setIfEmpty(&o.FacefinderPath, "FACEGATE_FACEFINDER")
	setIfEmpty(&o.PuplocPath, "FACEGATE_PUPLOC")
	setIfEmpty(&o.GalleryDir, "FACEGATE_GALLERY_DIR")
	setIfEmpty(&o.BlobAccountURL, "AZURE_STORAGE_ACCOUNT_URL")
	setIfEmpty(&o.BlobConnectionString, "AZURE_STORAGE_CONNECTION_STRING")
	setIfEmpty(&o.BlobContainer, "AZURE_STORAGE_CONTAINER")
	setIfEmpty(&o.BlobClientID, "AZURE_CLIENT_ID")
}

func setIfEmpty(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

// LoadDotEnv loads variables from path without overriding ones already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ResolveDBURL returns the flag value, or a connection string built from POSTGRES_*.
// An empty result means history is disabled.
func ResolveDBURL(flag string) string {
	if flag != "" {
		return flag
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
