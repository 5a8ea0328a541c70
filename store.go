package session

import (
	"context"
	"sync"
)

// MemoryStore keeps the credential for the process lifetime only. It is the
// degraded mode when durable storage is unavailable, and useful in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewMemoryStore returns an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements CredentialStore. Last write wins.
func (s *MemoryStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred.Clone()
	return nil
}

// Load implements CredentialStore.
func (s *MemoryStore) Load(_ context.Context) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Clone(), nil
}

// Clear implements CredentialStore.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

// FallbackStore wraps a durable store and degrades to in-memory credentials
// when the durable layer fails. The degradation is a warning, not an error:
// callers keep a working session-only store.
type FallbackStore struct {
	mu       sync.Mutex
	primary  CredentialStore
	memory   *MemoryStore
	degraded bool
	warned   bool
	logger   Logger
}

// NewFallbackStore wraps primary with in-memory degradation.
func NewFallbackStore(primary CredentialStore, logger Logger) *FallbackStore {
	if logger == nil {
		logger = defLogger{}
	}
	return &FallbackStore{
		primary: primary,
		memory:  NewMemoryStore(),
		logger:  logger,
	}
}

// Degraded reports whether the store has fallen back to memory-only mode.
func (s *FallbackStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *FallbackStore) degrade(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = true
	if !s.warned {
		s.warned = true
		s.logger.Warn("credential storage unavailable during %s, using session-only credentials: %v", op, err)
	}
}

func (s *FallbackStore) isDegraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Save implements CredentialStore.
func (s *FallbackStore) Save(ctx context.Context, cred *Credential) error {
	if !s.isDegraded() {
		err := s.primary.Save(ctx, cred)
		if err == nil {
			return nil
		}
		s.degrade("save", err)
	}
	return s.memory.Save(ctx, cred)
}

// Load implements CredentialStore.
func (s *FallbackStore) Load(ctx context.Context) (*Credential, error) {
	if !s.isDegraded() {
		cred, err := s.primary.Load(ctx)
		if err == nil {
			return cred, nil
		}
		s.degrade("load", err)
	}
	return s.memory.Load(ctx)
}

// Clear implements CredentialStore. Both layers are cleared so a later
// recovery of the durable store cannot resurrect a logged-out credential.
func (s *FallbackStore) Clear(ctx context.Context) error {
	if !s.isDegraded() {
		if err := s.primary.Clear(ctx); err != nil {
			s.degrade("clear", err)
		}
	}
	return s.memory.Clear(ctx)
}
