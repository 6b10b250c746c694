package catalog

import (
	_ "embed"
	"sync"
	"sync/atomic"
)

//go:embed mimiciv.yaml
var defaultDocument []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the built-in MIMIC-IV catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultDocument)
		if err != nil {
			panic("catalog: built-in document is invalid: " + err.Error())
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// DefaultDocument returns the raw built-in catalog document.
func DefaultDocument() []byte {
	return append([]byte(nil), defaultDocument...)
}

// Holder publishes the current catalog snapshot. Readers always observe a
// complete, validated catalog; reloads swap the pointer.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a holder publishing c.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Catalog returns the current snapshot.
func (h *Holder) Catalog() *Catalog {
	return h.current.Load()
}

// Swap publishes c and returns the previous snapshot.
func (h *Holder) Swap(c *Catalog) *Catalog {
	return h.current.Swap(c)
}
