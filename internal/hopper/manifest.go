package hopper

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// manifestEntry is one registered reader. Token is distinct from Name: Name
// is the human-readable identity used for the reader's cursor filename
// (stable across a topology rebuild that keeps the same node name), while
// Token is a random identity minted once when the reader is first seen and
// persisted in the manifest. Cursor files are keyed by Name alone, so a
// reader re-added under the same name resumes from that name's existing
// cursor; the token is not consulted when a cursor is loaded.
type manifestEntry struct {
	Name  string    `json:"name"`
	Token uuid.UUID `json:"token"`
}

type manifestFile struct {
	Readers []manifestEntry `json:"readers"`
}

// manifest tracks the set of readers registered against one channel
// directory, persisted so a restarted process rediscovers the same reader
// identities instead of minting new ones and losing GC accounting.
type manifest struct {
	path    string
	entries map[string]manifestEntry
}

func loadManifest(dir string) (*manifest, error) {
	path := filepath.Join(dir, "manifest")
	m := &manifest{path: path, entries: make(map[string]manifestEntry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, err
	}
	for _, e := range mf.Readers {
		m.entries[e.Name] = e
	}
	return m, nil
}

// register returns the existing entry for name, or mints and persists a new
// one.
func (m *manifest) register(name string) (manifestEntry, error) {
	if e, ok := m.entries[name]; ok {
		return e, nil
	}
	e := manifestEntry{Name: name, Token: uuid.New()}
	m.entries[name] = e
	return e, m.save()
}

func (m *manifest) names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	return names
}

func (m *manifest) save() error {
	mf := manifestFile{Readers: make([]manifestEntry, 0, len(m.entries))}
	for _, e := range m.entries {
		mf.Readers = append(mf.Readers, e)
	}
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
