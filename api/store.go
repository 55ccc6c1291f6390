package api

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/lvbits/internal/hash"
)

// Artifact file extensions served by /download.
const (
	ExtContainer = ".bits"
	ExtImage     = ".png"
)

// DefaultStoreEntries is the artifact store capacity when none is configured.
const DefaultStoreEntries = 256

// Artifact is a downloadable result kept in memory.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// ArtifactStore keeps the most recent results, keyed by content digest.
//
// When full, the oldest entry is evicted first. Storing identical content twice
// yields the same name and does not refresh its age.
type ArtifactStore struct {
	mu      sync.RWMutex
	max     int
	entries map[string]*Artifact
	order   []string
}

// NewArtifactStore creates a store holding at most maxEntries artifacts.
func NewArtifactStore(maxEntries int) *ArtifactStore {
	if maxEntries <= 0 {
		maxEntries = DefaultStoreEntries
	}

	return &ArtifactStore{
		max:     maxEntries,
		entries: make(map[string]*Artifact, maxEntries),
	}
}

// Put stores data under "<digest><ext>" and returns the name.
func (s *ArtifactStore) Put(data []byte, ext string) string {
	name := hash.DigestHex(data) + ext

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return name
	}

	for len(s.order) >= s.max {
		delete(s.entries, s.order[0])
		s.order = s.order[1:]
	}

	s.entries[name] = &Artifact{
		Name:        name,
		ContentType: contentTypeForExt(ext),
		Data:        data,
		CreatedAt:   time.Now(),
	}
	s.order = append(s.order, name)

	return name
}

// Get returns the artifact stored under name.
func (s *ArtifactStore) Get(name string) (*Artifact, error) {
	if !validArtifactName(name) {
		return nil, fmt.Errorf("%q: %w", name, ErrArtifactNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrArtifactNotFound)
	}

	return a, nil
}

// Len returns the number of stored artifacts.
func (s *ArtifactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func validArtifactName(name string) bool {
	for _, ext := range []string{ExtContainer, ExtImage} {
		if digest, ok := strings.CutSuffix(name, ext); ok {
			return hash.IsDigestHex(digest)
		}
	}

	return false
}

func contentTypeForExt(ext string) string {
	switch ext {
	case ExtImage:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
