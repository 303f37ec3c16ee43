// Package filecache implements C8: a host-side mirror of the device's
// filename→size_bytes table (spec.md §4.8), kept in sync by the
// dispatcher-level commands in commands.go and consulted by the driver's
// getStoredFiles/hasFilesCache/isFilesCacheInSync queries
// (SPEC_FULL.md §6).
package filecache

import (
	"fmt"
	"sync"
	"unicode/utf8"
)

// ChangeKind names the one mutation an Observer is told about.
type ChangeKind int

const (
	Added ChangeKind = iota
	Updated
	Removed
	Refreshed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Refreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// Change describes one mutation to the cache; Name and Size are zero for
// a Refreshed change, which replaces the whole table at once.
type Change struct {
	Kind ChangeKind
	Name string
	Size int64
}

// Observer is notified after every committed mutation.
type Observer func(Change)

// Cache is the filename→size_bytes mirror. Safe for concurrent use: the
// dispatcher's single-flight event loop is the only writer in practice,
// but Files()/InSync() may be read from a concurrent query path.
type Cache struct {
	mu         sync.RWMutex
	files      map[string]int64
	inSync     bool
	maxNameLen int
	observers  []Observer
}

// New builds an empty, out-of-sync Cache. maxNameLen is the device's
// filename length limit (spec.md §4.8: "UTF-8, ≤ device-limit"); Add and
// Update reject names exceeding it.
func New(maxNameLen int) *Cache {
	return &Cache{files: map[string]int64{}, maxNameLen: maxNameLen}
}

// Observe registers fn to be called after every committed mutation.
func (c *Cache) Observe(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Cache) notify(ch Change) {
	for _, obs := range c.observers {
		obs(ch)
	}
}

func (c *Cache) validateName(name string) error {
	if !utf8.ValidString(name) {
		return fmt.Errorf("filecache: name %q is not valid UTF-8", name)
	}
	if len(name) > c.maxNameLen {
		return fmt.Errorf("filecache: name %q exceeds device limit of %d bytes", name, c.maxNameLen)
	}
	if name == "" {
		return fmt.Errorf("filecache: name must not be empty")
	}
	return nil
}

// Add records a new file. Returns an error if name already exists or
// fails validation; neither mutates the map nor notifies on error.
func (c *Cache) Add(name string, size int64) error {
	if err := c.validateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.files[name]; exists {
		c.mu.Unlock()
		return fmt.Errorf("filecache: %q already cached", name)
	}
	c.files[name] = size
	c.mu.Unlock()
	c.notify(Change{Kind: Added, Name: name, Size: size})
	return nil
}

// Update changes an existing file's recorded size.
func (c *Cache) Update(name string, size int64) error {
	if err := c.validateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.files[name]; !exists {
		c.mu.Unlock()
		return fmt.Errorf("filecache: %q not cached", name)
	}
	c.files[name] = size
	c.mu.Unlock()
	c.notify(Change{Kind: Updated, Name: name, Size: size})
	return nil
}

// Remove drops a file from the cache.
func (c *Cache) Remove(name string) error {
	c.mu.Lock()
	if _, exists := c.files[name]; !exists {
		c.mu.Unlock()
		return fmt.Errorf("filecache: %q not cached", name)
	}
	delete(c.files, name)
	c.mu.Unlock()
	c.notify(Change{Kind: Removed, Name: name})
	return nil
}

// Refresh replaces the entire mapping with fresh, and marks the cache in
// sync — the response to the device's authoritative file list.
func (c *Cache) Refresh(files map[string]int64) {
	c.mu.Lock()
	c.files = make(map[string]int64, len(files))
	for name, size := range files {
		c.files[name] = size
	}
	c.inSync = true
	c.mu.Unlock()
	c.notify(Change{Kind: Refreshed})
}

// MarkOutOfSync flips the sync flag false, per spec.md §4.8: set on any
// mismatch with the device's reported file list. A later Refresh clears
// it again.
func (c *Cache) MarkOutOfSync() {
	c.mu.Lock()
	c.inSync = false
	c.mu.Unlock()
}

// InSync reports whether the mirror is believed to match the device.
func (c *Cache) InSync() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inSync
}

// Files returns a snapshot of the current mapping.
func (c *Cache) Files() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.files))
	for name, size := range c.files {
		out[name] = size
	}
	return out
}

// Size looks up a single file's cached size.
func (c *Cache) Size(name string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	size, ok := c.files[name]
	return size, ok
}
