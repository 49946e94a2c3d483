package normalize

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Dictionary holds the user rule table loaded from a file. Rules returns an
// immutable snapshot, so a reload never changes the table under a running
// Normalize call.
type Dictionary struct {
	path   string
	logger *slog.Logger
	rules  atomic.Pointer[[]Rule]
	mu     sync.Mutex
}

// OpenDictionary creates the file if needed and performs the first load.
func OpenDictionary(path string, logger *slog.Logger) (*Dictionary, error) {
	d := &Dictionary{
		path:   path,
		logger: logger.With(slog.String("component", "dictionary")),
	}
	empty := []Rule{}
	d.rules.Store(&empty)
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dictionary) Path() string { return d.path }

func (d *Dictionary) Rules() []Rule {
	return *d.rules.Load()
}

// Reload re-reads the file. On failure the previous table stays in effect.
func (d *Dictionary) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rules, err := LoadDictionary(d.path)
	if err != nil {
		d.logger.Warn("dictionary reload failed", slog.String("path", d.path), slog.String("error", err.Error()))
		return err
	}
	if rules == nil {
		rules = []Rule{}
	}
	d.rules.Store(&rules)
	d.logger.Info("dictionary loaded", slog.String("path", d.path), slog.Int("rules", len(rules)))
	return nil
}
