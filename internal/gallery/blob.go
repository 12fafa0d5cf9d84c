package gallery

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// BlobConfig locates the storage container.
type BlobConfig struct {
	AccountURL       string // https://<account>.blob.core.windows.net
	ConnectionString string // takes precedence, e.g. for Azurite
	Container        string
	Prefix           string
	ClientID         string // user-assigned managed identity
}

type uploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// BlobGallery uploads images as block blobs with tags and metadata.
type BlobGallery struct {
	client    uploader
	url       string
	container string
	prefix    string
}

// NewBlobGallery builds a client from a connection string, a managed identity, or the
// default Azure credential chain, in that order.
func NewBlobGallery(cfg BlobConfig) (*BlobGallery, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("blob gallery needs a container name")
	}
	if cfg.ConnectionString == "" && cfg.AccountURL == "" {
		return nil, fmt.Errorf("blob gallery needs an account URL or a connection string")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.ClientID != "":
		cred, cerr := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(cfg.ClientID),
		})
		if cerr != nil {
			return nil, fmt.Errorf("invalid managed identity credential: %w", cerr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
	default:
		cred, cerr := azidentity.NewDefaultAzureCredential(nil)
		if cerr != nil {
			return nil, fmt.Errorf("invalid credentials: %w", cerr)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating blob client: %w", err)
	}
	return &BlobGallery{client: client, url: client.URL(), container: cfg.Container, prefix: cfg.Prefix}, nil
}

// Save uploads the stamped JPEG and returns its blob URL.
func (g *BlobGallery) Save(ctx context.Context, name string, jpeg []byte, description string) (string, error) {
	data, err := StampDescription(jpeg, description)
	if err != nil {
		return "", err
	}

	blobName := path.Join(g.prefix, sanitize(name))
	contentType := "image/jpeg"
	desc := description
	_, err = g.client.UploadBuffer(ctx, g.container, blobName, data, &azblob.UploadBufferOptions{
		Tags:        map[string]string{"Source": "facegate"},
		Metadata:    map[string]*string{"Description": &desc},
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("error uploading blob %s: %w", blobName, err)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(g.url, "/"), g.container, blobName), nil
}
