package main

import (
	"bytes"
	"context"
	"image"
	"io"
	"log/slog"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pintatina/internal/domain"
	"pintatina/internal/prompt"
	"pintatina/internal/session"
)

// flakyProvider fails the first attempt of every page listed in failOnce.
type flakyProvider struct {
	png []byte

	mu       sync.Mutex
	failOnce map[string]bool
	calls    int
	images   int
}

func (p *flakyProvider) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.images = len(req.Images)
	for mod, fail := range p.failOnce {
		if fail && strings.Contains(req.Text, "Variation: "+mod+"\n") {
			p.failOnce[mod] = false
			return domain.Image{}, assert.AnError
		}
	}
	return domain.Image{Data: p.png, MimeType: "image/png"}, nil
}

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewGray(image.Rect(0, 0, 3, 4))))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func newFlaky(t *testing.T, failing ...int) *flakyProvider {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewGray(image.Rect(0, 0, 3, 4))))
	p := &flakyProvider{png: buf.Bytes(), failOnce: map[string]bool{}}
	for _, i := range failing {
		mod, err := prompt.Modifier(i)
		require.NoError(t, err)
		p.failOnce[mod] = true
	}
	return p
}

func TestRunGenerate_WritesDocumentAndManifest(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	provider := newFlaky(t)

	var progressOut bytes.Buffer
	res, snap, err := runGenerate(context.Background(), generateOptions{
		Images:      []string{writePNG(t, dir, "a.png"), writePNG(t, dir, "b.png")},
		Description: "@img1 y @img2 en el bosque",
		OutDir:      out,
	}, provider, nil, &progressOut)
	require.NoError(t, err)

	assert.Equal(t, prompt.Count, snap.Completed())
	assert.Equal(t, prompt.Count, provider.calls)
	assert.Equal(t, 2, provider.images)
	assert.FileExists(t, res.Document)
	assert.FileExists(t, res.Manifest)
	assert.Contains(t, progressOut.String(), "generate_all finished: 10/10 pages completed")
}

func TestRunGenerate_RetriesFailedPages(t *testing.T) {
	dir := t.TempDir()
	provider := newFlaky(t, 2, 7)

	_, snap, err := runGenerate(context.Background(), generateOptions{
		Images:      []string{writePNG(t, dir, "a.png")},
		Description: "un robot",
		OutDir:      filepath.Join(dir, "out"),
		Retries:     1,
	}, provider, nil, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, prompt.Count, snap.Completed())
	assert.Equal(t, prompt.Count+2, provider.calls)
}

func TestRunGenerate_WithoutRetriesKeepsErrors(t *testing.T) {
	dir := t.TempDir()
	provider := newFlaky(t, 0)

	res, snap, err := runGenerate(context.Background(), generateOptions{
		Images:      []string{writePNG(t, dir, "a.png")},
		Description: "un robot",
		OutDir:      filepath.Join(dir, "out"),
	}, provider, nil, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, prompt.Count-1, snap.Completed())
	assert.True(t, snap.HasError())
	assert.FileExists(t, res.Document)
}

func TestRunGenerate_Validation(t *testing.T) {
	dir := t.TempDir()
	provider := newFlaky(t)

	_, _, err := runGenerate(context.Background(), generateOptions{
		Images: []string{writePNG(t, dir, "a.png")},
	}, provider, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, session.ErrNoDescription)

	_, _, err = runGenerate(context.Background(), generateOptions{Description: "x"}, provider, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, session.ErrNoPhotos)

	_, _, err = runGenerate(context.Background(), generateOptions{
		Images:      []string{filepath.Join(dir, "missing.png")},
		Description: "x",
	}, provider, nil, &bytes.Buffer{})
	assert.Error(t, err)
	assert.Zero(t, provider.calls)
}

func TestLoadPhotos_DropsBeyondCapacity(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"1.png", "2.png", "3.png", "4.png", "5.png"} {
		paths = append(paths, writePNG(t, dir, name))
	}

	set, err := loadPhotos(paths, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 4, set.Len())
	assert.Equal(t, "image/png", set.List()[0].MimeType)
}

func TestRootCmd_HasGenerate(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"generate"})
	require.NoError(t, err)
	assert.Equal(t, "generate", cmd.Name())
	assert.NotNil(t, cmd.Flags().Lookup("tui"))
	assert.NotNil(t, cmd.Flags().ShorthandLookup("i"))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
