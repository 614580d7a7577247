package storage

import (
	"path/filepath"
	"sync"

	"github.com/bobboyms/reldb/pkg/btree"
	"github.com/bobboyms/reldb/pkg/errors"
	"github.com/bobboyms/reldb/pkg/heap"
)

// DefaultTreeGrade is the B+Tree branching factor used for every index this
// engine creates; nothing in this engine varies it per table.
const DefaultTreeGrade = 64

// Index is one ordered index over a table column: the primary key index, or
// a declared secondary index.
type Index struct {
	Name    string
	Column  string
	Primary bool
	Unique  bool
	Tree    *btree.BPlusTree
}

// Table is a named, schema-bound row store: a heap of row versions plus the
// indexes built over it.
type Table struct {
	Name    string
	Schema  Schema
	Heap    *heap.HeapManager
	Indices map[string]*Index

	mu sync.RWMutex
}

// RLock/RUnlock/Lock/Unlock expose the table's latch directly so Engine can
// hold it for the duration of a multi-row operation without a second type.
func (t *Table) RLock()   { t.mu.RLock() }
func (t *Table) RUnlock() { t.mu.RUnlock() }
func (t *Table) Lock()    { t.mu.Lock() }
func (t *Table) Unlock()  { t.mu.Unlock() }

// PrimaryIndex returns the table's primary key index, if its schema declares one.
func (t *Table) PrimaryIndex() (*Index, bool) {
	for _, idx := range t.Indices {
		if idx.Primary {
			return idx, true
		}
	}
	return nil, false
}

// Catalog owns the set of live tables: the single source of truth for
// schema and per-table statistics.
type Catalog struct {
	mu       sync.RWMutex
	tables   map[string]*Table
	basePath string
}

// NewCatalog opens (or prepares to create) tables rooted at basePath.
func NewCatalog(basePath string) *Catalog {
	return &Catalog{
		tables:   make(map[string]*Table),
		basePath: basePath,
	}
}

// CreateTable registers a new table with the given schema, building a
// primary key index when the schema declares one. Returns TableAlreadyExists
// if the name is taken, or the schema's own validation error.
func (c *Catalog) CreateTable(name string, schema Schema) (*Table, error) {
	if err := schema.Validate(name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, &errors.TableAlreadyExistsError{Name: name}
	}

	hm, err := heap.NewHeapManager(filepath.Join(c.basePath, name))
	if err != nil {
		return nil, &errors.ResourceError{Op: "create_table heap", Err: err}
	}

	table := &Table{
		Name:    name,
		Schema:  schema,
		Heap:    hm,
		Indices: make(map[string]*Index),
	}

	if pk, ok := schema.PrimaryKey(); ok {
		table.Indices[pk.Name] = &Index{
			Name:    pk.Name,
			Column:  pk.Name,
			Primary: true,
			Unique:  true,
			Tree:    btree.NewUniqueTree(DefaultTreeGrade),
		}
	}

	c.tables[name] = table
	return table, nil
}

// DropTable removes a table. behavior=restrict rejects the drop if another
// table's schema declares a foreign key into it; behavior=cascade ignores
// that check. Deleting the referenced rows of dependent tables is left to
// the caller — this only removes the catalog entry and its heap files.
func (c *Catalog) DropTable(name string, cascade bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, exists := c.tables[name]
	if !exists {
		return &errors.TableNotFoundError{Name: name}
	}

	if !cascade {
		for otherName, other := range c.tables {
			if otherName == name {
				continue
			}
			for _, fk := range other.Schema.ForeignKeys {
				if fk.RefTable == name {
					return &errors.FKViolationError{
						Table: otherName, Column: fk.Column,
						RefTable: fk.RefTable, RefColumn: fk.RefColumn,
					}
				}
			}
		}
	}

	if err := target.Heap.Close(); err != nil {
		return &errors.ResourceError{Op: "drop_table close heap", Err: err}
	}
	delete(c.tables, name)
	return nil
}

// GetTableByName returns the live table with that name, or TableNotFound.
func (c *Catalog) GetTableByName(name string) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	table, exists := c.tables[name]
	if !exists {
		return nil, &errors.TableNotFoundError{Name: name}
	}
	return table, nil
}

// GetIndexByName returns a named index on a table.
func (c *Catalog) GetIndexByName(tableName, indexName string) (*Index, error) {
	table, err := c.GetTableByName(tableName)
	if err != nil {
		return nil, err
	}
	table.RLock()
	defer table.RUnlock()

	idx, ok := table.Indices[indexName]
	if !ok {
		return nil, &errors.IndexNotFoundError{Name: indexName}
	}
	return idx, nil
}

// ListTables returns every table name currently registered.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}
