package rvcspec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
)

// schemaDocument is the on-disk shape of the spec file: DGNs and
// named enumerations, YAML-encoded.
type schemaDocument struct {
	DGNs  []DgnDef  `yaml:"dgns"`
	Enums []EnumDef `yaml:"enums"`
}

// Load parses the spec file at path and builds a Registry. It is called
// once at process startup: the returned Registry is never torn down
// or reloaded for the process lifetime.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newSpecLoadError("read_failed", "%v", err)
	}

	var doc schemaDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, newSpecLoadError("parse_failed", "%v", err)
	}

	return newRegistry(doc.DGNs, doc.Enums)
}

// cacheEntry is what LoadCached persists to bbolt: the registry's decoded
// DGN/enum tables keyed by a content hash of the source spec file, so an
// unchanged spec document can skip re-parsing YAML on the next restart.
// This caches the immutable spec document itself, never bus-observed
// state, so it does not conflict with the "no persistent store of
// observed state" non-goal.
type cacheEntry struct {
	DGNs  []DgnDef  `json:"dgns"`
	Enums []EnumDef `json:"enums"`
}

var cacheBucket = []byte("rvcspec_registry_cache")

// LoadCached behaves like Load but consults a bbolt database first: if an
// entry exists for the spec file's content hash, the cached, already
// validated tables are reused and the YAML parse is skipped. On a cache
// miss (new db, or the spec file changed), it loads normally via Load and
// stores the result for next time. db may be nil, in which case this is
// equivalent to Load.
func LoadCached(path string, db *bolt.DB) (*Registry, error) {
	if db == nil {
		return Load(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, newSpecLoadError("read_failed", "%v", err)
	}
	sum := sha256.Sum256(raw)
	key := []byte(hex.EncodeToString(sum[:]))

	var cached cacheEntry
	found := false
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &cached)
	})
	if err != nil {
		return nil, fmt.Errorf("reading registry cache: %w", err)
	}

	if found {
		return newRegistry(cached.DGNs, cached.Enums)
	}

	var doc schemaDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, newSpecLoadError("parse_failed", "%v", err)
	}
	reg, err := newRegistry(doc.DGNs, doc.Enums)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(cacheEntry{DGNs: doc.DGNs, Enums: doc.Enums})
	if err == nil {
		_ = db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists(cacheBucket)
			if err != nil {
				return err
			}
			return b.Put(key, encoded)
		})
	}

	return reg, nil
}

// OpenCacheDB opens (or creates) the bbolt database backing LoadCached.
func OpenCacheDB(path string) (*bolt.DB, error) {
	return bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
}
