// store.go implements the on-disk side of the Snapshot Codec: writing and
// reading the three per-tenant files under <data_dir>/snapshots/. No WAL,
// manifest, or checkpoint layer sits on top — durability is periodic
// snapshot plus a graceful-shutdown dump, nothing stronger. One codec, one
// file per logical unit, atomic write-via-rename so a crash mid-write
// never corrupts the previous good snapshot.
package persistence

import (
	"os"
	"path/filepath"

	"github.com/cuemap-dev/cuemap/pkg/core"
)

// Store reads and writes snapshot files beneath a base data directory.
type Store struct {
	dir   string
	codec *Codec
}

// NewStore builds a Store rooted at dataDir/snapshots, creating the
// directory if needed.
func NewStore(dataDir string, compress bool) (*Store, error) {
	dir := filepath.Join(dataDir, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.ErrPersistence
	}
	return &Store{dir: dir, codec: NewCodec(compress)}, nil
}

func (s *Store) path(tenant core.TenantID, suffix string) string {
	name := string(tenant) + suffix + ".bin"
	return filepath.Join(s.dir, name)
}

// SaveEngine writes the main engine's snapshot to <tenant>.bin.
func (s *Store) SaveEngine(tenant core.TenantID, snap *EngineSnapshot) error {
	return s.save(s.path(tenant, ""), snap)
}

// SaveLexicon writes the lexicon's snapshot to <tenant>_lexicon.bin.
func (s *Store) SaveLexicon(tenant core.TenantID, snap *EngineSnapshot) error {
	return s.save(s.path(tenant, "_lexicon"), snap)
}

// SaveAliases writes the alias table's snapshot to <tenant>_aliases.bin.
// Aliases are folded into an EngineSnapshot with only the Aliases field
// populated, reusing the same codec and header for every file kind.
func (s *Store) SaveAliases(tenant core.TenantID, edges map[string][]AliasEdge) error {
	return s.save(s.path(tenant, "_aliases"), &EngineSnapshot{Aliases: edges})
}

func (s *Store) save(path string, snap *EngineSnapshot) error {
	data, err := s.codec.Encode(snap)
	if err != nil {
		return core.ErrPersistence
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return core.ErrPersistence
	}
	if err := os.Rename(tmp, path); err != nil {
		return core.ErrPersistence
	}
	return nil
}

// LoadEngine reads <tenant>.bin. Returns (nil, false, nil) if the file does
// not exist (a fresh tenant with no prior snapshot is not an error).
func (s *Store) LoadEngine(tenant core.TenantID) (*EngineSnapshot, bool, error) {
	return s.load(s.path(tenant, ""))
}

// LoadLexicon reads <tenant>_lexicon.bin.
func (s *Store) LoadLexicon(tenant core.TenantID) (*EngineSnapshot, bool, error) {
	return s.load(s.path(tenant, "_lexicon"))
}

// LoadAliases reads <tenant>_aliases.bin.
func (s *Store) LoadAliases(tenant core.TenantID) (map[string][]AliasEdge, bool, error) {
	snap, ok, err := s.load(s.path(tenant, "_aliases"))
	if !ok || err != nil {
		return nil, ok, err
	}
	return snap.Aliases, true, nil
}

func (s *Store) load(path string) (*EngineSnapshot, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, core.ErrPersistence
	}
	snap, err := s.codec.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// ListTenants scans the snapshot directory for main-engine files and
// returns the tenant IDs found, used on daemon startup to discover which
// tenants to rehydrate on startup: every file found is loaded.
func (s *Store) ListTenants() ([]core.TenantID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.ErrPersistence
	}

	var tenants []core.TenantID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".bin" {
			continue
		}
		base := name[:len(name)-len(".bin")]
		if len(base) == 0 {
			continue
		}
		// Skip the lexicon/aliases companion files; the main file for a
		// tenant has no suffix.
		if hasSuffix(base, "_lexicon") || hasSuffix(base, "_aliases") {
			continue
		}
		tenants = append(tenants, core.TenantID(base))
	}
	return tenants, nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
