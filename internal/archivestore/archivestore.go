// Package archivestore implements the archive-store adapter: the versioned
// HTTP blob store holding every run's final packed record. Reachability is
// checked once at construction time via a cheap version call; uploads are
// idempotent, and downloads support the byte-for-byte verification the
// migrate stage runs after an upload when --validate is given.
package archivestore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fnal-sbnd/rrarchiver/internal/errs"
)

// Config configures the HTTP transport to the archive store.
type Config struct {
	URL            string
	FolderName     string
	ObjectName     string
	WriterUser     string
	WriterPassword string
	Timeout        time.Duration
	InsecureSkipVerify bool
}

// Store is an HTTP-backed archive-store adapter.
type Store struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New constructs a Store and verifies the server is reachable by fetching
// its version, failing fast at construction rather than on first use.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &Store{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "archivestore",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	if _, err := s.version(ctx); err != nil {
		return nil, errs.New(errs.KindArchiveStore, "", nil, fmt.Errorf("initializing archive store client: %w", err), nil)
	}
	return s, nil
}

func (s *Store) version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(s.cfg.URL, "/")+"/app/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("version check returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// ExistingRuns returns the set of run numbers already present in the
// store's folder/object, as reported by the store's version listing.
func (s *Store) ExistingRuns(ctx context.Context) (map[int]bool, error) {
	url := fmt.Sprintf("%s/app/data/%s/%s/versions", strings.TrimRight(s.cfg.URL, "/"), s.cfg.FolderName, s.cfg.ObjectName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.KindArchiveStore, "", nil, err, nil)
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("lookup_versions returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return parseVersionKeys(string(body)), nil
	})
	if err != nil {
		return nil, errs.New(errs.KindArchiveStore, "", nil, fmt.Errorf("looking up versions: %w", err), nil)
	}
	return out.(map[int]bool), nil
}

// parseVersionKeys extracts digit-only keys from a newline-delimited list
// of version keys, discarding any non-numeric entry.
func parseVersionKeys(body string) map[int]bool {
	runs := map[int]bool{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if n, err := strconv.Atoi(line); err == nil && n > 0 {
			runs[n] = true
		}
	}
	return runs
}

// UploadOutcome distinguishes a fresh upload from one that found the blob
// already present, so callers can log/count the latter as a warning rather
// than a success.
type UploadOutcome int

const (
	Uploaded UploadOutcome = iota
	AlreadyPresent
)

// Upload stores blobContent under key runNumber. Uploads are idempotent: if
// the store already holds any version for this run, it reports
// AlreadyPresent and skips the upload outright — a run already archived is
// never re-uploaded, whatever its stored bytes turn out to be, so a migrate
// retry after a partial previous success does not fail spuriously and never
// overwrites a version another process may have written first.
func (s *Store) Upload(ctx context.Context, runNumber int, blobContent string) (UploadOutcome, error) {
	if _, err := s.Download(ctx, runNumber); err == nil {
		return AlreadyPresent, nil
	}

	url := fmt.Sprintf("%s/app/data/%s/%s", strings.TrimRight(s.cfg.URL, "/"), s.cfg.FolderName, s.cfg.ObjectName)
	key := strconv.Itoa(runNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url+"?key="+key+"&tags="+key, strings.NewReader(blobContent))
	if err != nil {
		return 0, errs.New(errs.KindArchiveStore, "", &runNumber, err, nil)
	}
	req.SetBasicAuth(s.cfg.WriterUser, s.cfg.WriterPassword)
	req.Header.Set("Content-Type", "text/plain")

	_, err = s.breaker.Execute(func() (interface{}, error) {
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("upload returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, nil
	})
	if err != nil {
		return 0, errs.New(errs.KindArchiveStore, "", &runNumber, fmt.Errorf("uploading blob for run %d: %w", runNumber, err), nil)
	}
	return Uploaded, nil
}

// Download fetches the blob content stored for runNumber. Returns a
// KindArchiveStore errs.Error reporting the run as not found if absent.
func (s *Store) Download(ctx context.Context, runNumber int) (string, error) {
	url := fmt.Sprintf("%s/app/data/%s/%s/key=%d", strings.TrimRight(s.cfg.URL, "/"), s.cfg.FolderName, s.cfg.ObjectName, runNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errs.New(errs.KindArchiveStore, "", &runNumber, err, nil)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errs.New(errs.KindArchiveStore, "", &runNumber, err, nil)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", errs.New(errs.KindArchiveStore, "", &runNumber, fmt.Errorf("run %d not found", runNumber), nil)
	}
	if resp.StatusCode >= 400 {
		return "", errs.New(errs.KindArchiveStore, "", &runNumber, fmt.Errorf("download returned status %d", resp.StatusCode), nil)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errs.New(errs.KindArchiveStore, "", &runNumber, err, nil)
	}
	return string(body), nil
}

// Verify re-downloads the blob just uploaded for runNumber and compares its
// MD5 against generatedBlob, matching the migrate stage's post-upload
// verification step.
func (s *Store) Verify(ctx context.Context, runNumber int, generatedBlob string) error {
	downloaded, err := s.Download(ctx, runNumber)
	if err != nil {
		return err
	}
	want := md5Hex(generatedBlob)
	got := md5Hex(downloaded)
	if want != got {
		return errs.New(errs.KindVerification, "", &runNumber,
			fmt.Errorf("MD5 mismatch between generated (%s) and downloaded (%s) blobs", want, got), nil)
	}
	return nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
