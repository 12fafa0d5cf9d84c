package gallery

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJPEG(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, jpeg.Encode(buf, image.NewRGBA(image.Rect(0, 0, 16, 16)), nil))
	return buf.Bytes()
}

func readDescription(t *testing.T, data []byte) string {
	t.Helper()
	s, err := ReadDescription(data)
	require.NoError(t, err)
	return s
}

func TestStampDescription(t *testing.T) {
	stamped, err := StampDescription(sampleJPEG(t), "output [1 2]")
	require.NoError(t, err)
	assert.Equal(t, "output [1 2]", readDescription(t, stamped))

	assert.True(t, IsStamped(stamped))
	assert.False(t, IsStamped(sampleJPEG(t)))

	_, _, err = image.Decode(bytes.NewReader(stamped))
	assert.NoError(t, err, "stamped file must still decode")

	bare, err := StampDescription(sampleJPEG(t), "")
	require.NoError(t, err)
	assert.True(t, IsStamped(bare))
	_, err = ReadDescription(bare)
	assert.Error(t, err)
}

func TestDirGallerySave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gallery")
	g, err := NewDirGallery(dir)
	require.NoError(t, err)

	loc, err := g.Save(context.Background(), "../escape", sampleJPEG(t), "capture 1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.jpg"), loc)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "capture 1", readDescription(t, data))
	assert.True(t, IsStamped(data))
}

func TestDirGalleryClearKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	g, err := NewDirGallery(dir)
	require.NoError(t, err)

	loc, err := g.Save(context.Background(), "capture", sampleJPEG(t), "facegate output capture 1")
	require.NoError(t, err)

	holiday := filepath.Join(dir, "holiday.png")
	require.NoError(t, os.WriteFile(holiday, []byte("png"), 0o644))
	camera := filepath.Join(dir, "camera.jpg")
	require.NoError(t, os.WriteFile(camera, sampleJPEG(t), 0o644))

	n, err := g.Clear()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(loc)
	assert.True(t, os.IsNotExist(err), "capture must be removed")
	assert.FileExists(t, holiday)
	assert.FileExists(t, camera)
	assert.DirExists(t, dir)
}

func TestDirGalleryClearMissingDir(t *testing.T) {
	n, err := (&DirGallery{Dir: filepath.Join(t.TempDir(), "absent")}).Clear()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNopGallery(t *testing.T) {
	_, err := Nop{}.Save(context.Background(), "x", nil, "")
	assert.True(t, errors.Is(err, ErrDisabled))
}

type fakeUploader struct {
	container, name string
	data            []byte
	opts            *azblob.UploadBufferOptions
	err             error
}

func (f *fakeUploader) UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container, f.name, f.data, f.opts = containerName, blobName, buffer, o
	return azblob.UploadBufferResponse{}, f.err
}

func TestBlobGallerySave(t *testing.T) {
	up := &fakeUploader{}
	g := &BlobGallery{client: up, url: "https://acct.blob.core.windows.net/", container: "captures", prefix: "faces"}

	loc, err := g.Save(context.Background(), "abc", sampleJPEG(t), "hello")
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/captures/faces/abc.jpg", loc)
	assert.Equal(t, "captures", up.container)
	assert.Equal(t, "faces/abc.jpg", up.name)
	assert.Equal(t, "facegate", up.opts.Tags["Source"])
	assert.Equal(t, "hello", *up.opts.Metadata["Description"])
	assert.Equal(t, "hello", readDescription(t, up.data))

	up.err = errors.New("403")
	_, err = g.Save(context.Background(), "abc", sampleJPEG(t), "hello")
	assert.Error(t, err)
}

func TestNewBlobGalleryNeedsContainer(t *testing.T) {
	_, err := NewBlobGallery(BlobConfig{AccountURL: "https://acct.blob.core.windows.net"})
	assert.Error(t, err)
}

func TestNewBlobGalleryNeedsAccount(t *testing.T) {
	_, err := NewBlobGallery(BlobConfig{Container: "captures"})
	assert.Error(t, err)
}
