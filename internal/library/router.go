package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/alcove/internal/lexical"
	"github.com/fyrsmithlabs/alcove/internal/vectorstore"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the library router.
type RouterConfig struct {
	// DataDir is the root directory for persisted library records.
	// Empty disables persistence (in-memory only, used in tests).
	DataDir string `koanf:"data_dir"`

	// StoreKind selects the vector store implementation per library.
	StoreKind vectorstore.Kind `koanf:"store_kind"`
}

// Router owns all per-library retrieval state. It is the single
// constructor of vector stores and lexical indexes: two calls with the
// same library ID always return the same instances, so concurrent
// operations on one library serialize through one owner.
type Router struct {
	config RouterConfig
	logger *zap.Logger

	mu        sync.Mutex
	libraries map[string]*Library
	stores    map[string]vectorstore.Store
	lexicons  map[string]*lexical.Index
	active    string
}

// NewRouter creates a Router with the given configuration.
func NewRouter(config RouterConfig, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		config:    config,
		logger:    logger,
		libraries: make(map[string]*Library),
		stores:    make(map[string]vectorstore.Store),
		lexicons:  make(map[string]*lexical.Index),
	}
}

// Create registers a new library. Policy defaults are applied.
func (r *Router) Create(ctx context.Context, lib Library) (*Library, error) {
	lib.Policy.ApplyDefaults()
	if err := lib.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.libraries[lib.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, lib.ID)
	}
	if lib.CreatedAt.IsZero() {
		lib.CreatedAt = time.Now().UTC()
	}
	stored := lib
	r.libraries[lib.ID] = &stored

	if err := r.saveRegistryLocked(); err != nil {
		delete(r.libraries, lib.ID)
		return nil, err
	}
	r.logger.Info("library created",
		zap.String("library_id", lib.ID),
		zap.Int("embedding_dim", lib.EmbeddingDim),
		zap.Bool("strict_mode", lib.Policy.StrictMode),
	)
	return &stored, nil
}

// Get returns a library by ID.
func (r *Router) Get(id string) (*Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.libraries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *lib
	return &copied, nil
}

// List returns all libraries sorted by ID.
func (r *Router) List() []*Library {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Library, 0, len(r.libraries))
	for _, lib := range r.libraries {
		copied := *lib
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetActive pins the library used when a query names no library.
func (r *Router) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.libraries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.active = id
	return nil
}

// Active returns the pinned library ID, or empty when none is pinned.
func (r *Router) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// StoreFor returns the library's vector store, constructing it lazily.
// The same instance is returned for every call with the same ID.
func (r *Router) StoreFor(ctx context.Context, id string) (vectorstore.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storeForLocked(ctx, id)
}

func (r *Router) storeForLocked(ctx context.Context, id string) (vectorstore.Store, error) {
	lib, ok := r.libraries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if store, ok := r.stores[id]; ok {
		return store, nil
	}

	store, err := vectorstore.NewStore(vectorstore.Options{
		Kind:       r.config.StoreKind,
		Dimension:  lib.EmbeddingDim,
		Path:       r.storePath(id),
		Collection: collectionName(id),
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating store for library %s: %w", id, err)
	}
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading store for library %s: %w", id, err)
	}
	r.stores[id] = store
	return store, nil
}

// LexiconFor returns the library's lexical index, constructing it lazily
// and backfilling it from the vector store's chunks.
func (r *Router) LexiconFor(ctx context.Context, id string) (*lexical.Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.libraries[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if idx, ok := r.lexicons[id]; ok {
		return idx, nil
	}

	idx := lexical.NewIndex()
	// Rebuild postings from persisted chunks so lexical search survives
	// restarts without its own persistence format.
	store, err := r.storeForLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	chunks, err := store.Chunks(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		idx.Add(c.ID, c.Content)
	}
	r.lexicons[id] = idx
	return idx, nil
}

// SetDimension changes a library's embedding dimension. Refused with
// ErrDimensionLocked while the library holds any chunks: changing the
// dimension is a user-visible re-embed, never an automatic migration.
func (r *Router) SetDimension(ctx context.Context, id string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalidLibrary)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.libraries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if lib.EmbeddingDim == dim {
		return nil
	}

	store, err := r.storeForLocked(ctx, id)
	if err != nil {
		return err
	}
	if store.Count() > 0 {
		return fmt.Errorf("%w: library %s holds %d chunks", ErrDimensionLocked, id, store.Count())
	}

	// Empty store: swap in a store with the new dimension.
	if err := store.Close(); err != nil {
		return err
	}
	delete(r.stores, id)
	lib.EmbeddingDim = dim
	return r.saveRegistryLocked()
}

// Drop tears down a library, discarding its store, lexicon and
// persisted record.
func (r *Router) Drop(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.libraries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if store, ok := r.stores[id]; ok {
		if err := store.Close(); err != nil {
			r.logger.Warn("closing store during drop", zap.String("library_id", id), zap.Error(err))
		}
	}
	delete(r.stores, id)
	delete(r.lexicons, id)
	delete(r.libraries, id)
	if r.active == id {
		r.active = ""
	}
	if path := r.storePath(id); path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing store file: %w", err)
		}
	}
	if err := r.saveRegistryLocked(); err != nil {
		return err
	}
	r.logger.Info("library dropped", zap.String("library_id", id))
	return nil
}

// Close closes all open stores.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, store := range r.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing store %s: %w", id, err)
		}
	}
	r.stores = make(map[string]vectorstore.Store)
	r.lexicons = make(map[string]*lexical.Index)
	return firstErr
}

// registryFile is the on-disk layout of the library registry.
type registryFile struct {
	SchemaVersion int       `json:"schema_version"`
	Libraries     []Library `json:"libraries"`
}

// Load restores the library registry from DataDir. Missing registry is
// not an error. Unknown JSON fields are ignored (forward-readable).
func (r *Router) Load(ctx context.Context) error {
	if r.config.DataDir == "" {
		return nil
	}
	data, err := os.ReadFile(r.registryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading library registry: %w", err)
	}

	var reg registryFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return fmt.Errorf("decoding library registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.libraries = make(map[string]*Library, len(reg.Libraries))
	for i := range reg.Libraries {
		lib := reg.Libraries[i]
		lib.Policy.ApplyDefaults()
		r.libraries[lib.ID] = &lib
	}
	r.logger.Info("library registry loaded", zap.Int("libraries", len(r.libraries)))
	return nil
}

// saveRegistryLocked persists the registry. Caller holds r.mu.
func (r *Router) saveRegistryLocked() error {
	if r.config.DataDir == "" {
		return nil
	}
	reg := registryFile{SchemaVersion: 1}
	for _, lib := range r.libraries {
		reg.Libraries = append(reg.Libraries, *lib)
	}
	sort.Slice(reg.Libraries, func(i, j int) bool { return reg.Libraries[i].ID < reg.Libraries[j].ID })

	data, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encoding library registry: %w", err)
	}
	if err := os.MkdirAll(r.config.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	path := r.registryPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing library registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing library registry: %w", err)
	}
	return nil
}

func (r *Router) registryPath() string {
	return filepath.Join(r.config.DataDir, "libraries.json")
}

func (r *Router) storePath(id string) string {
	if r.config.DataDir == "" {
		return ""
	}
	return filepath.Join(r.config.DataDir, "stores", sanitizeID(id)+".json")
}

// collectionName derives a chromem-safe collection name from a library ID.
func collectionName(id string) string {
	return "lib_" + sanitizeID(id)
}

// sanitizeID maps a library ID onto filesystem- and collection-safe runes.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
