package federation

import (
	"database/sql"
	"sync"

	"github.com/gomphodon/gomphodon/domain"
	"github.com/google/uuid"
)

// In-memory store fakes shared across the package tests.

type fakeStatusStore struct {
	mu        sync.Mutex
	statuses  map[string]*domain.Status // keyed by object URI
	createErr error                     // returned by the next CreateStatusIfAbsent, then cleared
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{statuses: make(map[string]*domain.Status)}
}

func (s *fakeStatusStore) ReadStatusByObjectURI(uri string) (error, *domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, ok := s.statuses[uri]; ok {
		copied := *status
		return nil, &copied
	}
	return sql.ErrNoRows, nil
}

func (s *fakeStatusStore) failNextCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

func (s *fakeStatusStore) CreateStatusIfAbsent(status *domain.Status) (error, *domain.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return err, nil
	}
	if existing, ok := s.statuses[status.ObjectURI]; ok {
		copied := *existing
		return nil, &copied
	}
	copied := *status
	s.statuses[status.ObjectURI] = &copied
	result := copied
	return nil, &result
}

func (s *fakeStatusStore) DeleteStatusByObjectURI(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.statuses, uri)
	return nil
}

func (s *fakeStatusStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses)
}

type fakeActorStore struct {
	mu     sync.Mutex
	actors map[string]*domain.RemoteAccount // keyed by actor URI
}

func newFakeActorStore() *fakeActorStore {
	return &fakeActorStore{actors: make(map[string]*domain.RemoteAccount)}
}

func (s *fakeActorStore) ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.actors[uri]; ok {
		copied := *acc
		return nil, &copied
	}
	return sql.ErrNoRows, nil
}

func (s *fakeActorStore) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.actors {
		if acc.Id == id {
			copied := *acc
			return nil, &copied
		}
	}
	return sql.ErrNoRows, nil
}

func (s *fakeActorStore) SaveRemoteAccount(acc *domain.RemoteAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *acc
	s.actors[acc.ActorURI] = &copied
	return nil
}

func (s *fakeActorStore) DeleteRemoteAccount(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri, acc := range s.actors {
		if acc.Id == id {
			delete(s.actors, uri)
		}
	}
	return nil
}
