package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"oakvoices/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_Upload(t *testing.T) {
	t.Parallel()

	d := New(t.TempDir(), "http://localhost:8080/")
	ctx := context.Background()

	url, err := d.Upload(ctx, "covers", "sunset.JPG", "image/jpeg", strings.NewReader("fake image bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/storage/covers/"), url)
	assert.True(t, strings.HasSuffix(url, ".jpg"), "extension is lowercased: %s", url)

	name := url[strings.LastIndex(url, "/")+1:]
	data, err := os.ReadFile(filepath.Join(d.Root(), "covers", name))
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(data))
}

func TestDisk_Upload_CollisionFreeNames(t *testing.T) {
	t.Parallel()

	d := New(t.TempDir(), "http://localhost:8080")
	ctx := context.Background()

	first, err := d.Upload(ctx, "covers", "same.png", "image/png", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := d.Upload(ctx, "covers", "same.png", "image/png", strings.NewReader("two"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestDisk_Upload_RejectsOversizedBlob(t *testing.T) {
	t.Parallel()

	d := New(t.TempDir(), "http://localhost:8080")
	huge := strings.NewReader(strings.Repeat("x", MaxBlobSize+1))

	_, err := d.Upload(context.Background(), "covers", "huge.png", "image/png", huge)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)

	entries, err := os.ReadDir(filepath.Join(d.Root(), "covers"))
	require.NoError(t, err)
	assert.Empty(t, entries, "the partial blob is removed")
}

func TestDisk_EnsureBucket(t *testing.T) {
	t.Parallel()

	d := New(t.TempDir(), "http://localhost:8080")
	ctx := context.Background()

	require.NoError(t, d.EnsureBucket(ctx, "covers"))
	info, err := os.Stat(filepath.Join(d.Root(), "covers"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	for _, bucket := range []string{"", "..", "a/b", `a\b`, "dotted.name"} {
		err := d.EnsureBucket(ctx, bucket)
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr, "bucket %q", bucket)
		assert.Equal(t, models.CodeValidation, appErr.Code)
	}
}
