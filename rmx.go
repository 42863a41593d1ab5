package rmx

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/rmxdev/rmx/internal/cache"
	"github.com/rmxdev/rmx/internal/remote"
)

const (
	// DefaultConcurrency bounds parallel metadata fetches during a rebuild.
	DefaultConcurrency = 4

	cacheFileName = "tree.cache"
)

// Client maintains the local mirror of one remote store account.
//
// The in-memory hierarchy is owned by the client for the session; the
// durable copy is owned by the cache store, which is the sole writer of
// the cache file.
type Client struct {
	remote      remote.Store
	cache       *cache.Store
	concurrency int

	mu         sync.Mutex
	hier       *Hierarchy
	rootHash   string
	generation int64
	fetchedAt  time.Time
	loaded     bool
}

// Open creates a client. The durable cache is loaded lazily on first use.
func Open(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	store := options.Remote
	if store == nil {
		var err error
		store, err = remote.NewHTTPStore(options.BaseURL, remote.StaticToken(options.Token))
		if err != nil {
			return nil, err
		}
	}

	cachePath := filepath.Join(expandPath(options.CacheDir), cacheFileName)
	return &Client{
		remote:      store,
		cache:       cache.NewStore(cachePath),
		concurrency: options.Concurrency,
	}, nil
}

// Remote exposes the underlying store client.
func (c *Client) Remote() remote.Store { return c.remote }

// Hierarchy returns the current in-memory hierarchy, nil before any sync
// or cache load.
func (c *Client) Hierarchy() *Hierarchy {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadCached()
	return c.hier
}

// RootHash returns the root hash the current hierarchy was built from,
// "" on cold start.
func (c *Client) RootHash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadCached()
	return c.rootHash
}

// CachedAt returns when the current hierarchy was fetched, zero on cold
// start.
func (c *Client) CachedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadCached()
	return c.fetchedAt
}

// Lookup resolves a name path against the current hierarchy.
func (c *Client) Lookup(path string) (*Node, error) {
	c.mu.Lock()
	h := c.hier
	c.mu.Unlock()
	if h == nil {
		return nil, ErrNotSynced
	}
	return h.NodeByPath(path)
}

// SkippedEntry records an entry left out of a rebuilt hierarchy.
type SkippedEntry struct {
	ID     string
	Reason string
}

// SyncResult is the outcome of one Sync call.
type SyncResult struct {
	Hierarchy  *Hierarchy
	RootHash   string
	Generation int64
	FromCache  bool
	Skipped    []SkippedEntry
}

// Sync brings the local mirror up to date. When the remote root hash
// matches the cached one the cached hierarchy is returned without any
// blob fetch. Otherwise the root index is fetched and decoded, per-entry
// metadata is resolved concurrently, and the cache record is replaced
// atomically. Entries whose metadata cannot be fetched are skipped and
// reported; only a root index failure aborts the sync, leaving the
// previous cache intact.
func (c *Client) Sync(ctx context.Context) (*SyncResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loadCached()

	ptr, err := c.remote.GetRootPointer(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch root pointer")
	}

	if c.hier != nil && ptr.Hash == c.rootHash {
		log.WithField("root", shortHash(ptr.Hash)).Debug("root unchanged, reusing cached hierarchy")
		return &SyncResult{
			Hierarchy:  c.hier,
			RootHash:   c.rootHash,
			Generation: ptr.Generation,
			FromCache:  true,
		}, nil
	}

	entries, skipped, err := c.rebuild(ctx, ptr)
	if err != nil {
		return nil, err
	}

	h := BuildHierarchy(entries)
	for _, id := range h.Cycles {
		skipped = append(skipped, SkippedEntry{ID: id, Reason: "parent cycle"})
	}
	for _, s := range skipped {
		log.WithFields(log.Fields{"id": s.ID, "reason": s.Reason}).Warn("entry skipped during sync")
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, errors.Wrap(err, "serialize entries")
	}
	now := time.Now().UTC()
	rec := &cache.Record{
		RootHash:   ptr.Hash,
		Generation: ptr.Generation,
		FetchedAt:  now,
		Entries:    payload,
	}
	if err := c.cache.Save(rec); err != nil {
		// The rebuilt hierarchy is still usable; only persistence failed.
		log.WithError(err).Warn("cache save failed, next run will resync")
	}

	c.hier = h
	c.rootHash = ptr.Hash
	c.generation = ptr.Generation
	c.fetchedAt = now

	return &SyncResult{
		Hierarchy:  h,
		RootHash:   ptr.Hash,
		Generation: ptr.Generation,
		Skipped:    skipped,
	}, nil
}

// loadCached restores the hierarchy from the durable cache record once per
// client. Any load problem degrades to a cold start.
func (c *Client) loadCached() {
	if c.loaded {
		return
	}
	c.loaded = true

	rec, err := c.cache.Load()
	if err != nil || rec == nil {
		return
	}

	var entries []Entry
	if err := json.Unmarshal(rec.Entries, &entries); err != nil {
		log.WithError(err).Warn("cached entries unreadable, forcing cold resync")
		return
	}

	c.hier = BuildHierarchy(entries)
	c.rootHash = rec.RootHash
	c.generation = rec.Generation
	c.fetchedAt = rec.FetchedAt
	log.WithFields(log.Fields{"root": shortHash(rec.RootHash), "entries": len(entries)}).
		Debug("hierarchy restored from cache")
}

func (c *Client) rebuild(ctx context.Context, ptr remote.RootPointer) ([]Entry, []SkippedEntry, error) {
	indexBlob, err := c.remote.GetBlob(ctx, ptr.Hash)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetch root index")
	}
	lines, err := parseIndexBlob(indexBlob)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode root index")
	}

	log.WithFields(log.Fields{"root": shortHash(ptr.Hash), "entries": len(lines)}).
		Info("rebuilding hierarchy")

	var (
		mu      sync.Mutex
		entries []Entry
		skipped []SkippedEntry
	)

	p := pool.New().WithMaxGoroutines(c.concurrency).WithContext(ctx)
	for _, line := range lines {
		line := line
		p.Go(func(ctx context.Context) error {
			entry, err := c.resolveEntry(ctx, line)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == errEntryDeleted:
				// deleted entries vanish without a warning
			case err != nil:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				skipped = append(skipped, SkippedEntry{ID: line.ID, Reason: err.Error()})
			default:
				entries = append(entries, entry)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].ID < skipped[j].ID })
	return entries, skipped, nil
}

var errEntryDeleted = errors.New("entry deleted")

// resolveEntry turns one root index line into an Entry by fetching the
// entry's document index and its metadata component.
func (c *Client) resolveEntry(ctx context.Context, line indexLine) (Entry, error) {
	schemaBlob, err := c.remote.GetBlob(ctx, line.Hash)
	if err != nil {
		return Entry{}, errors.Wrap(err, "fetch document index")
	}
	manifest, err := parseManifest(line.ID, schemaBlob)
	if err != nil {
		return Entry{}, errors.Wrap(err, "decode document index")
	}

	metaFile, ok := manifest.fileBySuffix(".metadata")
	if !ok {
		return Entry{}, errors.New("no metadata component")
	}

	metaBlob, err := c.remote.GetBlob(ctx, metaFile.Hash)
	if err != nil {
		return Entry{}, errors.Wrap(err, "fetch metadata")
	}

	var meta entryMetadata
	if err := json.Unmarshal(metaBlob, &meta); err != nil {
		return Entry{}, errors.Wrap(err, "decode metadata")
	}
	if meta.Deleted {
		return Entry{}, errEntryDeleted
	}

	kind := KindDocument
	if meta.Type == string(KindCollection) {
		kind = KindCollection
	}
	name := meta.VisibleName
	if name == "" {
		name = "Unknown"
	}

	return Entry{
		ID:           line.ID,
		ParentID:     meta.Parent,
		Kind:         kind,
		Name:         name,
		Hash:         line.Hash,
		Size:         line.Size,
		Pinned:       meta.Pinned,
		LastModified: meta.modifiedTime(),
	}, nil
}

func expandPath(path string) string {
	if expanded, err := homedir.Expand(path); err == nil {
		return expanded
	}
	return path
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
