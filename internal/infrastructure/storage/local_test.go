package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/config"
	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/domain/model"
)

type memAttachments map[string]*entity.Attachment

func (m memAttachments) GetByIDs(_ context.Context, ids []string) ([]*entity.Attachment, error) {
	var out []*entity.Attachment
	for _, id := range ids {
		if a, ok := m[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func setup(t *testing.T, publicURL string, maxBytes int64) (*LocalResolver, memAttachments) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "t1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "t1", "cat.png"), []byte("png-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "t1", "notes.txt"), []byte("raw notes"), 0o644))

	repo := memAttachments{
		"img":     {ID: "img", MediaType: "image", StoragePath: "t1/cat.png", MimeType: "image/png", FileSize: 9},
		"doc":     {ID: "doc", MediaType: "document", StoragePath: "t1/notes.txt", MimeType: "text/plain", TextContent: "extracted"},
		"rawdoc":  {ID: "rawdoc", MediaType: "document", StoragePath: "t1/notes.txt", MimeType: "text/plain"},
		"missing": {ID: "missing", MediaType: "image", StoragePath: "t1/gone.png", MimeType: "image/png"},
		"escape":  {ID: "escape", MediaType: "image", StoragePath: "../../etc/passwd", MimeType: "image/png"},
	}
	r := NewLocalResolver(config.MediaStorageConfig{Root: root, PublicBaseURL: publicURL, MaxBytes: maxBytes}, repo)
	return r, repo
}

func TestLocalResolver_Image(t *testing.T) {
	r, repo := setup(t, "", 0)
	c, err := r.Resolve(context.Background(), repo["img"].Ref())
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), c.Data)
	assert.Empty(t, c.URL)
	assert.Equal(t, model.AttachmentImage, c.Ref.Kind)
}

func TestLocalResolver_HostedURL(t *testing.T) {
	r, repo := setup(t, "https://media.example.com/", 0)
	c, err := r.Resolve(context.Background(), repo["img"].Ref())
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/t1/cat.png", c.URL)
	assert.True(t, c.HasInline())
}

func TestLocalResolver_Document(t *testing.T) {
	r, repo := setup(t, "", 0)
	c, err := r.Resolve(context.Background(), repo["doc"].Ref())
	require.NoError(t, err)
	assert.Equal(t, "extracted", c.Text)

	c, err = r.Resolve(context.Background(), repo["rawdoc"].Ref())
	require.NoError(t, err)
	assert.Equal(t, "raw notes", c.Text)
}

func TestLocalResolver_Unavailable(t *testing.T) {
	r, repo := setup(t, "", 4)
	cases := []model.AttachmentRef{
		repo["missing"].Ref(),
		repo["escape"].Ref(),
		repo["img"].Ref(),
		{Kind: model.AttachmentImage, StorageID: "unknown"},
	}
	for _, ref := range cases {
		_, err := r.Resolve(context.Background(), ref)
		assert.True(t, errors.Is(err, model.ErrAttachmentUnavailable), "ref %s", ref.StorageID)
	}
}
