package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/sniplink/sniplink/internal/cache"
	apperrors "github.com/sniplink/sniplink/internal/errors"
	"github.com/sniplink/sniplink/internal/logger"
	"github.com/sniplink/sniplink/internal/model"
	"github.com/sniplink/sniplink/internal/repository"
	"github.com/sniplink/sniplink/internal/shortcode"
	"github.com/sniplink/sniplink/internal/validator"
)

const (
	// maxGenerateAttempts bounds the generate-and-create retry loop.
	// 62^7 codes against any realistic record count means the second
	// attempt is already astronomically unlikely; five is paranoia.
	maxGenerateAttempts = 5

	// opTimeout caps store/cache calls made outside a request context
	// (the background click flusher).
	opTimeout = 5 * time.Second

	// clickQueueSize is the click flusher's buffer. Sequential traffic
	// never fills it; a full queue under pathological load drops the
	// click and logs, never blocks a redirect.
	clickQueueSize = 1024

	qrImageSize = 256
)

// URLService handles business logic for URL operations
type URLService struct {
	repo      *repository.URLRepository
	cache     cache.Cache
	gen       *shortcode.Generator
	validator *validator.URLValidator
	log       *logger.Logger
	baseURL   string // e.g., "http://localhost:8080"

	clicks    chan string
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewURLService creates a new service instance and starts the click
// flusher. Call Close to drain it on shutdown.
func NewURLService(repo *repository.URLRepository, c cache.Cache, baseURL string, log *logger.Logger) *URLService {
	s := &URLService{
		repo:      repo,
		cache:     c,
		gen:       shortcode.New(shortcode.DefaultLength),
		validator: validator.NewURLValidator(),
		log:       log,
		baseURL:   strings.TrimRight(baseURL, "/"),
		clicks:    make(chan string, clickQueueSize),
	}

	s.wg.Add(1)
	go s.clickLoop()

	return s
}

// Close drains the click flusher. After Close returns, every click
// enqueued before the call has been applied (or its failure logged).
func (s *URLService) Close() {
	s.closeOnce.Do(func() {
		close(s.clicks)
	})
	s.wg.Wait()
}

// ============ SHORTEN ============

// Shorten returns an existing mapping or creates a new one.
//
// Policy:
//   - no alias: dedup against prior alias-free records for the same URL,
//     else generate a code (bounded retries, the store's unique
//     constraint is the authoritative collision signal)
//   - alias: idempotent if the alias already maps to the same URL,
//     conflict if it maps elsewhere, create otherwise
func (s *URLService) Shorten(ctx context.Context, req model.ShortenRequest) (*model.ShortenResponse, error) {
	if appErr := s.validator.ValidateURL(req.URL); appErr != nil {
		return nil, appErr
	}

	if req.CustomAlias != "" {
		return s.shortenWithAlias(ctx, req.URL, req.CustomAlias)
	}
	return s.shortenGenerated(ctx, req.URL)
}

func (s *URLService) shortenWithAlias(ctx context.Context, originalURL, alias string) (*model.ShortenResponse, error) {
	if appErr := s.validator.ValidateCustomAlias(alias); appErr != nil {
		return nil, appErr
	}

	// Alias records always carry the alias in short_code too, so one
	// lookup covers both "short_code = alias" and "custom_alias = alias".
	existing, err := s.repo.GetByShortCode(ctx, alias)
	switch {
	case err == nil:
		if existing.OriginalURL == originalURL {
			// Idempotent success: same alias, same destination.
			s.cacheRecord(ctx, existing)
			return s.response(existing), nil
		}
		return nil, apperrors.AliasTaken()
	case errors.Is(err, repository.ErrNotFound):
		// proceed to create
	default:
		return nil, fmt.Errorf("alias lookup: %w", err)
	}

	record := &model.URL{
		ShortCode:   alias,
		OriginalURL: originalURL,
		CustomAlias: &alias,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			// Lost a race for the alias. The winner decides idempotency.
			winner, lookupErr := s.repo.GetByShortCode(ctx, alias)
			if lookupErr == nil && winner.OriginalURL == originalURL {
				s.cacheRecord(ctx, winner)
				return s.response(winner), nil
			}
			return nil, apperrors.AliasTaken()
		}
		return nil, fmt.Errorf("create alias record: %w", err)
	}

	s.cacheRecord(ctx, record)
	return s.response(record), nil
}

func (s *URLService) shortenGenerated(ctx context.Context, originalURL string) (*model.ShortenResponse, error) {
	// Reverse-mapping cache accelerates the dedup check. Only codes of
	// alias-free records are ever written here, so a hit is always a
	// valid dedup answer.
	if code, err := s.cache.Get(ctx, reverseKey(originalURL)); err == nil {
		return &model.ShortenResponse{
			OriginalURL: originalURL,
			ShortCode:   code,
			ShortURL:    s.shortURL(code),
		}, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("reverse cache lookup failed", "error", err.Error())
	}

	existing, err := s.repo.FindByOriginalURL(ctx, originalURL)
	switch {
	case err == nil:
		s.cacheRecord(ctx, existing)
		return s.response(existing), nil
	case errors.Is(err, repository.ErrNotFound):
		// no dedup candidate, create a fresh record
	default:
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	// Generate-and-create loop. The pre-existence check is skipped on
	// purpose: the unique index decides, and a duplicate just means
	// "generate again".
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		record := &model.URL{
			ShortCode:   s.gen.Generate(),
			OriginalURL: originalURL,
		}
		err := s.repo.Create(ctx, record)
		if errors.Is(err, repository.ErrDuplicateCode) {
			s.log.Warn("generated code collided, retrying",
				"short_code", record.ShortCode,
				"attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create record: %w", err)
		}

		s.cacheRecord(ctx, record)
		return s.response(record), nil
	}

	return nil, fmt.Errorf("could not allocate a unique short code after %d attempts", maxGenerateAttempts)
}

// ============ RESOLVE ============

// Resolve maps a short code to its original URL for redirection,
// counting the click. Cache hits return immediately and count the click
// in the background; misses read the store, count synchronously, and
// warm the cache.
func (s *URLService) Resolve(ctx context.Context, code string) (string, error) {
	if appErr := s.validator.ValidateShortCode(code); appErr != nil {
		// Malformed codes cannot exist, so they are a not-found
		// outcome rather than a validation failure.
		return "", apperrors.URLNotFound(code)
	}

	cached, err := s.cache.Get(ctx, urlKey(code))
	if err == nil {
		s.enqueueClick(code)
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.Warn("cache lookup failed", "short_code", code, "error", err.Error())
	}

	record, err := s.repo.GetByShortCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperrors.URLNotFound(code)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", code, err)
	}

	if err := s.repo.IncrementClicks(ctx, code); err != nil {
		// The redirect must not fail over a lost click.
		s.log.Error("click increment failed", "short_code", code, "error", err.Error())
	}
	s.cacheRecord(ctx, record)

	return record.OriginalURL, nil
}

// ============ CLICK QUERY ============

// GetClicks returns the click counter and metadata for a short code.
// Reads the store directly; this is a diagnostic endpoint, not the hot
// path, and the cache does not hold counters.
func (s *URLService) GetClicks(ctx context.Context, code string) (*model.ClicksResponse, error) {
	if appErr := s.validator.ValidateShortCode(code); appErr != nil {
		return nil, apperrors.URLNotFound(code)
	}

	record, err := s.repo.GetByShortCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.URLNotFound(code)
	}
	if err != nil {
		return nil, fmt.Errorf("clicks %q: %w", code, err)
	}

	return &model.ClicksResponse{
		ShortCode:   record.ShortCode,
		Clicks:      record.Clicks,
		OriginalURL: record.OriginalURL,
		CreatedAt:   record.CreatedAt,
	}, nil
}

// ============ UNSHORTEN ============

// Unshorten resolves a short code to its original URL without counting
// a click, for link-preview style lookups.
func (s *URLService) Unshorten(ctx context.Context, code string) (*model.UnshortenResponse, error) {
	if appErr := s.validator.ValidateShortCode(code); appErr != nil {
		return nil, apperrors.URLNotFound(code)
	}

	record, err := s.repo.GetByShortCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.URLNotFound(code)
	}
	if err != nil {
		return nil, fmt.Errorf("unshorten %q: %w", code, err)
	}

	return &model.UnshortenResponse{
		ShortCode:   record.ShortCode,
		OriginalURL: record.OriginalURL,
	}, nil
}

// ============ QR CODE ============

// QRCode renders the short URL for an existing code as a PNG.
func (s *URLService) QRCode(ctx context.Context, code string) ([]byte, error) {
	if appErr := s.validator.ValidateShortCode(code); appErr != nil {
		return nil, apperrors.URLNotFound(code)
	}

	if _, err := s.repo.GetByShortCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.URLNotFound(code)
		}
		return nil, fmt.Errorf("qr %q: %w", code, err)
	}

	png, err := qrcode.Encode(s.shortURL(code), qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, fmt.Errorf("qr encode %q: %w", code, err)
	}
	return png, nil
}

// ============ CLICK FLUSHER ============

// enqueueClick submits a fire-and-forget click increment. Never blocks.
func (s *URLService) enqueueClick(code string) {
	select {
	case s.clicks <- code:
	default:
		s.log.Warn("click queue full, dropping click", "short_code", code)
	}
}

func (s *URLService) clickLoop() {
	defer s.wg.Done()

	for code := range s.clicks {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		err := s.repo.IncrementClicks(ctx, code)
		cancel()
		if err != nil {
			s.log.Error("background click increment failed",
				"short_code", code, "error", err.Error())
		}
	}
}

// ============ HELPERS ============

// cacheRecord writes the forward mapping, and the reverse mapping for
// dedup-eligible (alias-free) records. Best effort: failures are logged
// and the store remains authoritative.
func (s *URLService) cacheRecord(ctx context.Context, u *model.URL) {
	if err := s.cache.Set(ctx, urlKey(u.ShortCode), u.OriginalURL); err != nil {
		s.log.Warn("cache set failed", "short_code", u.ShortCode, "error", err.Error())
		return
	}
	if !u.HasCustomAlias() {
		if err := s.cache.Set(ctx, reverseKey(u.OriginalURL), u.ShortCode); err != nil {
			s.log.Warn("reverse cache set failed", "short_code", u.ShortCode, "error", err.Error())
		}
	}
}

func (s *URLService) response(u *model.URL) *model.ShortenResponse {
	return &model.ShortenResponse{
		OriginalURL: u.OriginalURL,
		ShortCode:   u.ShortCode,
		ShortURL:    s.shortURL(u.ShortCode),
	}
}

func (s *URLService) shortURL(code string) string {
	return s.baseURL + "/" + code
}

func urlKey(code string) string {
	return "url:" + code
}

func reverseKey(originalURL string) string {
	return "rev:" + originalURL
}
