package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/restorix/backend/internal/db/dbtest"
	"github.com/restorix/backend/internal/models"
	"github.com/restorix/backend/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	store *storage.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		db:    dbtest.New(t),
		store: storage.NewMemoryStore("http://storage.test"),
	}
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "x", Name: "Test User"}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) project(t *testing.T, userID, name string) *models.Project {
	t.Helper()
	p := &models.Project{UserID: userID, Name: name, Status: models.ProjectStatusDraft}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) folder(t *testing.T, projectID, name string, order int) *models.Folder {
	t.Helper()
	folder := &models.Folder{ProjectID: projectID, Name: name, DisplayOrder: order}
	require.NoError(t, f.db.Create(folder).Error)
	return folder
}

// photo inserts a photo row and its stored objects.
func (f *fixture) photo(t *testing.T, folder *models.Folder, name string) *models.Photo {
	t.Helper()
	p := &models.Photo{
		FolderID:     folder.ID,
		FileName:     name,
		OriginalName: name,
		StoragePath:  models.OriginalPath(folder.ProjectID, folder.ID, name),
		MimeType:     "image/jpeg",
		FileSize:     3,
		HasThumbnail: true,
	}
	require.NoError(t, f.db.Create(p).Error)
	require.NoError(t, f.store.Upload(testCtx(), p.StoragePath, []byte("img"), p.MimeType))
	require.NoError(t, f.store.Upload(testCtx(), models.ThumbnailPath(p.StoragePath), []byte("thm"), "image/jpeg"))
	// keep created_at strictly increasing for ordering assertions
	time.Sleep(2 * time.Millisecond)
	return p
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// heicBytes is an ISO-BMFF header with a heic brand; it sniffs as image/heic
// but cannot be decoded.
func heicBytes() []byte {
	b := []byte{0x00, 0x00, 0x00, 0x18}
	b = append(b, []byte("ftypheic")...)
	b = append(b, 0x00, 0x00, 0x00, 0x00)
	b = append(b, []byte("mif1heic")...)
	return append(b, make([]byte, 64)...)
}

func strPtr(s string) *string { return &s }

func testCtx() context.Context { return context.Background() }
