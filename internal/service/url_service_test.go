package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sniplink/sniplink/internal/cache"
	apperrors "github.com/sniplink/sniplink/internal/errors"
	"github.com/sniplink/sniplink/internal/logger"
	"github.com/sniplink/sniplink/internal/model"
	"github.com/sniplink/sniplink/internal/repository"
)

const testBaseURL = "http://localhost:8080"

func setupTestService(t *testing.T) *URLService {
	t.Helper()

	// Use in-memory SQLite for tests
	repo, err := repository.New("sqlite3", ":memory:")
	require.NoError(t, err, "failed to create repo")

	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	svc := NewURLService(repo, cache.NewMemoryCache(), testBaseURL, log)

	t.Cleanup(func() {
		svc.Close()
		repo.Close()
	})
	return svc
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.StatusCode
}

func TestShorten_Valid(t *testing.T) {
	svc := setupTestService(t)

	resp, err := svc.Shorten(context.Background(), model.ShortenRequest{
		URL: "https://example.com/a/b?c=1",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/a/b?c=1", resp.OriginalURL)
	assert.Len(t, resp.ShortCode, 7)
	assert.Equal(t, testBaseURL+"/"+resp.ShortCode, resp.ShortURL)
}

func TestShorten_InvalidURL(t *testing.T) {
	svc := setupTestService(t)

	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"no scheme", "example.com"},
		{"ftp scheme", "ftp://example.com"},
		{"just text", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Shorten(context.Background(), model.ShortenRequest{URL: tt.url})
			require.Error(t, err)
			assert.Equal(t, 400, statusOf(t, err))
		})
	}
}

func TestShorten_Dedup(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	first, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/page"})
	require.NoError(t, err)

	second, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/page"})
	require.NoError(t, err)
	assert.Equal(t, first.ShortCode, second.ShortCode, "same URL must dedup to the same code")

	other, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.org/other"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ShortCode, other.ShortCode, "distinct URLs must get distinct codes")
}

func TestShorten_CustomAlias(t *testing.T) {
	svc := setupTestService(t)

	resp, err := svc.Shorten(context.Background(), model.ShortenRequest{
		URL:         "https://example.com",
		CustomAlias: "my-link",
	})
	require.NoError(t, err)

	assert.Equal(t, "my-link", resp.ShortCode)
	assert.Equal(t, testBaseURL+"/my-link", resp.ShortURL)
}

func TestShorten_AliasIdempotent(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	req := model.ShortenRequest{URL: "https://example.com/docs", CustomAlias: "docs-1"}

	first, err := svc.Shorten(ctx, req)
	require.NoError(t, err)

	second, err := svc.Shorten(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ShortCode, second.ShortCode)
	assert.Equal(t, first.ShortURL, second.ShortURL)
}

func TestShorten_AliasConflict(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Shorten(ctx, model.ShortenRequest{
		URL:         "https://example.com/one",
		CustomAlias: "taken",
	})
	require.NoError(t, err)

	_, err = svc.Shorten(ctx, model.ShortenRequest{
		URL:         "https://example.com/two",
		CustomAlias: "taken",
	})
	require.Error(t, err)
	assert.Equal(t, 409, statusOf(t, err))
}

func TestShorten_AliasRecordNotDedupCandidate(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	pinned, err := svc.Shorten(ctx, model.ShortenRequest{
		URL:         "https://example.com/pinned",
		CustomAlias: "pinned-alias",
	})
	require.NoError(t, err)

	// A plain shorten of the same URL must not return the alias-pinned
	// record; it gets its own generated code.
	plain, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/pinned"})
	require.NoError(t, err)
	assert.NotEqual(t, pinned.ShortCode, plain.ShortCode)
	assert.Len(t, plain.ShortCode, 7)
}

func TestShorten_InvalidAlias(t *testing.T) {
	svc := setupTestService(t)

	for _, alias := range []string{"ab", "bad alias!", "api"} {
		_, err := svc.Shorten(context.Background(), model.ShortenRequest{
			URL:         "https://example.com",
			CustomAlias: alias,
		})
		require.Error(t, err, "alias %q should be rejected", alias)
		assert.Equal(t, 400, statusOf(t, err))
	}
}

func TestResolve(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/a/b?c=1"})
	require.NoError(t, err)

	target, err := svc.Resolve(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a/b?c=1", target, "redirect target must match byte-for-byte")
}

func TestResolve_Unknown(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.Resolve(context.Background(), "nosuch1")
	require.Error(t, err)
	assert.Equal(t, 404, statusOf(t, err))
}

func TestResolve_CountsEveryClick(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/counted"})
	require.NoError(t, err)

	// First resolve misses the cache (synchronous count), the rest hit
	// it (background count through the flusher).
	const n = 10
	for i := 0; i < n; i++ {
		_, err := svc.Resolve(ctx, resp.ShortCode)
		require.NoError(t, err)
	}

	// Close drains the flusher so every enqueued click has landed.
	svc.Close()

	clicks, err := svc.GetClicks(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), clicks.Clicks, "sequential clicks must count exactly")
}

func TestGetClicks(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/stats"})
	require.NoError(t, err)

	clicks, err := svc.GetClicks(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, resp.ShortCode, clicks.ShortCode)
	assert.Equal(t, "https://example.com/stats", clicks.OriginalURL)
	assert.Equal(t, uint64(0), clicks.Clicks)
	assert.False(t, clicks.CreatedAt.IsZero())
}

func TestGetClicks_Unknown(t *testing.T) {
	svc := setupTestService(t)

	_, err := svc.GetClicks(context.Background(), "missing1")
	require.Error(t, err)
	assert.Equal(t, 404, statusOf(t, err))
}

func TestUnshorten(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/expand"})
	require.NoError(t, err)

	un, err := svc.Unshorten(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/expand", un.OriginalURL)

	// Unshorten is a lookup, not a visit; it must not count clicks.
	clicks, err := svc.GetClicks(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), clicks.Clicks)
}

func TestQRCode(t *testing.T) {
	svc := setupTestService(t)
	ctx := context.Background()

	resp, err := svc.Shorten(ctx, model.ShortenRequest{URL: "https://example.com/qr"})
	require.NoError(t, err)

	png, err := svc.QRCode(ctx, resp.ShortCode)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected PNG bytes")

	_, err = svc.QRCode(ctx, "missing1")
	require.Error(t, err)
	assert.Equal(t, 404, statusOf(t, err))
}
