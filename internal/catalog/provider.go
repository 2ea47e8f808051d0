package catalog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Provider hands out the active catalog. The catalog only changes on an
// explicit Reload.
type Provider struct {
	path    string
	current atomic.Pointer[Catalog]
}

// NewProvider loads the catalog at path, or the embedded default when path
// is empty.
func NewProvider(path string) (*Provider, error) {
	p := &Provider{path: path}
	if _, err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewStaticProvider wraps an already loaded catalog. Reload re-parses the
// embedded default.
func NewStaticProvider(c *Catalog) *Provider {
	p := &Provider{}
	p.current.Store(c)
	return p
}

// Current returns the active catalog.
func (p *Provider) Current() *Catalog {
	return p.current.Load()
}

// Reload re-reads the catalog source and swaps it in. On error the previous
// catalog stays active.
func (p *Provider) Reload() (*Catalog, error) {
	var (
		c   *Catalog
		err error
	)
	if p.path == "" {
		c, err = Default()
	} else {
		c, err = LoadFile(p.path)
	}
	if err != nil {
		return nil, err
	}
	p.current.Store(c)
	zap.L().Info("catalog loaded",
		zap.String("version", c.Version),
		zap.String("path", p.path),
		zap.Int("processes", len(c.Processes)),
		zap.Int("actions", len(c.Actions)),
	)
	return c, nil
}
