package remote

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultBaseURL is the production storage host.
	DefaultBaseURL = "https://internal.cloud.remarkable.com"

	rootEndpoint  = "/sync/v3/root"
	filesEndpoint = "/sync/v3/files/"

	// headerFilename carries the logical name of the file a blob request
	// is for. The server uses it for accounting only.
	headerFilename = "rm-filename"

	// DefaultBlobCacheSize bounds the in-memory blob cache. Blobs are
	// immutable, so entries never go stale, only cold.
	DefaultBlobCacheSize = 256
)

// HTTPStore is the Store implementation over the storage HTTP API.
type HTTPStore struct {
	baseURL string
	tokens  TokenProvider
	client  *http.Client
	blobs   *lru.Cache
}

// NewHTTPStore creates a store client for baseURL authenticating via tokens.
func NewHTTPStore(baseURL string, tokens TokenProvider) (*HTTPStore, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	blobs, err := lru.New(DefaultBlobCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create blob cache")
	}

	return &HTTPStore{
		baseURL: baseURL,
		tokens:  tokens,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		blobs: blobs,
	}, nil
}

// GetRootPointer fetches the current root pointer.
func (s *HTTPStore) GetRootPointer(ctx context.Context) (RootPointer, error) {
	body, err := s.do(ctx, s.baseURL+rootEndpoint, "roothash")
	if err != nil {
		return RootPointer{}, err
	}

	var ptr RootPointer
	if err := json.Unmarshal(body, &ptr); err != nil {
		return RootPointer{}, errors.Wrap(err, "decode root pointer")
	}
	if ptr.Hash == "" {
		return RootPointer{}, errors.New("root pointer has no hash")
	}
	return ptr, nil
}

// GetBlob fetches a blob by hash, serving repeats from the in-memory cache.
func (s *HTTPStore) GetBlob(ctx context.Context, hash string) ([]byte, error) {
	if hash == "" {
		return nil, errors.New("empty blob hash")
	}

	if data, ok := s.blobs.Get(hash); ok {
		return data.([]byte), nil
	}

	body, err := s.do(ctx, s.baseURL+filesEndpoint+hash, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "blob %s", shortHash(hash))
	}

	s.blobs.Add(hash, body)
	return body, nil
}

func (s *HTTPStore) do(ctx context.Context, url, filename string) ([]byte, error) {
	token, err := s.tokens.Token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerFilename, filename)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Op: "GET " + url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 500:
		return nil, &TransientError{
			Op:  "GET " + url,
			Err: errors.Errorf("server returned %s", resp.Status),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: "GET " + url, Err: err}
	}

	log.WithFields(log.Fields{"url": url, "bytes": len(body)}).Debug("remote fetch")
	return body, nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
