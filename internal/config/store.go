package config

import "sync/atomic"

// Store holds the live Config. Exactly one Config value is current at any
// time; Update swaps the pointer atomically so readers never observe a
// partially applied document. Components keep a *Store and call Current on
// each tick, which makes updates visible at the next scheduling boundary
// without interrupting an in-flight cycle.
type Store struct {
	path string
	cur  atomic.Pointer[Config]
}

// NewStore creates a Store seeded with cfg. path is the backing JSON file
// used by Update; it may be empty for stores that are never persisted.
func NewStore(path string, cfg Config) *Store {
	s := &Store{path: path}
	s.cur.Store(&cfg)
	return s
}

// Current returns the live config. The returned pointer must be treated as
// read-only; it is shared between all readers.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Update validates cfg, persists it to the backing file and publishes it.
// On any failure the previous config remains in effect.
func (s *Store) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if s.path != "" {
		if err := cfg.Save(s.path); err != nil {
			return err
		}
	}
	s.cur.Store(&cfg)
	return nil
}
