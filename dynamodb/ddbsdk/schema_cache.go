package ddbsdk

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/ubuntu/decorate"
	"gopkg.in/yaml.v3"
)

// SchemaCache remembers table key schemas between invocations so that key based
// commands do not need a DescribeTable call every time.
// Entries are keyed by scope (usually the region or endpoint) and table name.
type SchemaCache struct {
	path string

	mu      sync.Mutex
	entries map[string]table.TableDefinition
}

type schemaCacheFile struct {
	Tables map[string]table.TableDefinition `yaml:"tables"`
}

// OpenSchemaCache loads the cache stored at path. A missing file is an empty cache.
func OpenSchemaCache(path string) (c *SchemaCache, err error) {
	defer decorate.OnError(&err, "could not open key schema cache")

	c = &SchemaCache{path: path, entries: make(map[string]table.TableDefinition)}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	var f schemaCacheFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for k, def := range f.Tables {
		c.entries[k] = def
	}
	slog.Debug("Loaded key schema cache", "path", path, "tables", len(c.entries))
	return c, nil
}

func cacheKey(scope, tableName string) string {
	return scope + "/" + tableName
}

// Get returns the cached definition of a table.
func (c *SchemaCache) Get(scope, tableName string) (table.TableDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	def, ok := c.entries[cacheKey(scope, tableName)]
	return def, ok
}

// Put stores the definition of a table and writes the cache file.
func (c *SchemaCache) Put(scope string, def table.TableDefinition) (err error) {
	defer decorate.OnError(&err, "could not save key schema cache")

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(scope, def.Name)] = def
	data, err := yaml.Marshal(schemaCacheFile{Tables: c.entries})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return err
	}

	// Write to a temporary file first so readers never see a partial cache.
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}
