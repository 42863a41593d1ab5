package rmx

import (
	"os"
	"path/filepath"

	"github.com/rmxdev/rmx/internal/remote"
)

// Options configures a Client.
type Options struct {
	CacheDir    string
	BaseURL     string
	Token       string
	Concurrency int

	// Remote overrides BaseURL/Token with an explicit store client.
	Remote remote.Store
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		CacheDir:    defaultCacheDir(),
		BaseURL:     remote.DefaultBaseURL,
		Concurrency: DefaultConcurrency,
	}
}

// WithCacheDir sets the directory holding the durable hierarchy cache.
func WithCacheDir(dir string) Option {
	return func(o *Options) {
		if dir != "" {
			o.CacheDir = dir
		}
	}
}

// WithBaseURL sets the storage API host.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		if url != "" {
			o.BaseURL = url
		}
	}
}

// WithToken sets the user auth token.
func WithToken(token string) Option {
	return func(o *Options) { o.Token = token }
}

// WithConcurrency sets the number of parallel metadata fetches during a
// hierarchy rebuild.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithRemote sets an explicit remote store client.
func WithRemote(store remote.Store) Option {
	return func(o *Options) { o.Remote = store }
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "rmx")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "rmx")
	}
	return ".rmx"
}
