package hsm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/andrei-cloud/go_atalla/pkg/akb"
)

// DefaultRedisKey is the hash that holds the shared key directory.
const DefaultRedisKey = "atalla:keys"

// Store kinds accepted by OpenStore.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// ErrStoreKind is returned by OpenStore for an unknown kind.
var ErrStoreKind = errors.New("unknown key store kind")

// StoreConfig selects and configures a KeyStore.
type StoreConfig struct {
	Kind          string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string
}

// OpenStore builds the configured store. The returned close function
// releases any connection the store holds.
func OpenStore(cfg StoreConfig) (KeyStore, func() error, error) {
	switch cfg.Kind {
	case "", StoreFile:
		return NewFileStore(cfg.Path), func() error { return nil }, nil
	case StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		return NewRedisStore(client, cfg.RedisKey), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrStoreKind, cfg.Kind)
	}
}

// KeyStore persists the key directory as name to flattened AKB.
type KeyStore interface {
	Load(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, name, block string) error
}

type directoryFile struct {
	Keys []directoryEntry `yaml:"keys"`
}

type directoryEntry struct {
	Name string `yaml:"name"`
	AKB  string `yaml:"akb"`
}

// FileStore keeps the directory in a YAML file:
//
//	keys:
//	  - name: kpe-acquirer
//	    akb: 1PDNE000,...,...
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the file. A missing file is an empty directory.
func (s *FileStore) Load(_ context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key directory: %w", err)
	}

	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse key directory %s: %w", s.Path, err)
	}
	out := make(map[string]string, len(f.Keys))
	for _, e := range f.Keys {
		if _, dup := out[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrDirectoryEntry, e.Name)
		}
		out[e.Name] = e.AKB
	}

	return out, nil
}

// Put adds or replaces an entry and rewrites the file.
func (s *FileStore) Put(ctx context.Context, name, block string) error {
	entries, err := s.Load(ctx)
	if err != nil {
		return err
	}
	entries[name] = block

	var f directoryFile
	for _, n := range slices.Sorted(maps.Keys(entries)) {
		f.Keys = append(f.Keys, directoryEntry{Name: n, AKB: entries[n]})
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}

	return os.WriteFile(s.Path, data, 0o600)
}

// RedisStore keeps the directory in a Redis hash so several simulators can
// share it.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a RedisStore on the given hash key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}

	return &RedisStore{client: client, key: key}
}

// Load returns every field of the hash. A missing hash is an empty directory.
func (s *RedisStore) Load(ctx context.Context) (map[string]string, error) {
	result, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", s.key, err)
	}

	return result, nil
}

// Put sets one field of the hash.
func (s *RedisStore) Put(ctx context.Context, name, block string) error {
	return s.client.HSet(ctx, s.key, name, block).Err()
}

// LoadDirectory reads a store and parses every entry into a key block.
// MACs are verified later, by NewSnapshot.
func LoadDirectory(ctx context.Context, store KeyStore) (map[string]*akb.KeyBlock, error) {
	raw, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*akb.KeyBlock, len(raw))
	for name, s := range raw {
		kb, err := akb.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrDirectoryEntry, name, err)
		}
		out[name] = kb
	}

	return out, nil
}
