// Package staging manages the transient files exchanged with the file-oriented codec.
//
// Every artifact is owned by a Scope (or a Stager.With call) and removed when the
// owner is closed, whether the request succeeded, failed validation, failed in the
// codec or panicked. Stager.Active reports artifacts that have not been released.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/internal/options"
	"github.com/arloliu/lvbits/internal/pool"
)

// DefaultDirName is the directory created under os.TempDir when no directory is configured.
const DefaultDirName = "lvbits-staging"

// Kind identifies what an artifact holds.
type Kind uint8

const (
	KindImage   Kind = 0x1 // KindImage is a lossless image exchanged with the codec.
	KindPayload Kind = 0x2 // KindPayload is a raw codec payload.
)

// Ext returns the file extension used for the kind.
func (k Kind) Ext() string {
	switch k {
	case KindImage:
		return ".png"
	case KindPayload:
		return ".bits"
	default:
		return ".tmp"
	}
}

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Option configures a Stager.
type Option = options.Option[*Stager]

// WithDir roots the stager at dir.
func WithDir(dir string) Option {
	return options.New(func(s *Stager) error {
		if dir == "" {
			return fmt.Errorf("%w: empty staging directory", errs.ErrStaging)
		}
		s.dir = dir

		return nil
	})
}

// WithLogger sets the logger used for release failures.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(s *Stager) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// Stager creates transient artifacts inside a single directory.
type Stager struct {
	dir    string
	logger *slog.Logger
	active atomic.Int64
}

// NewStager creates a Stager and its directory.
func NewStager(opts ...Option) (*Stager, error) {
	s := &Stager{
		dir:    filepath.Join(os.TempDir(), DefaultDirName),
		logger: slog.Default(),
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %v", errs.ErrStaging, err)
	}

	return s, nil
}

// Dir returns the staging directory.
func (s *Stager) Dir() string {
	return s.dir
}

// Active returns the number of acquired artifacts that have not been released.
func (s *Stager) Active() int {
	return int(s.active.Load())
}

// Acquire creates a new empty artifact with a unique name.
//
// The caller must Release it; prefer Scope or With.
func (s *Stager) Acquire(kind Kind) (*Artifact, error) {
	f, err := os.CreateTemp(s.dir, "lvbits-*"+kind.Ext())
	if err != nil {
		return nil, fmt.Errorf("%w: create %s artifact: %v", errs.ErrStaging, kind, err)
	}

	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: close %s artifact: %v", errs.ErrStaging, kind, err)
	}

	s.active.Add(1)

	return &Artifact{stager: s, path: path, kind: kind}, nil
}

// With acquires an artifact, passes it to fn and releases it afterwards, even if fn panics.
func (s *Stager) With(kind Kind, fn func(a *Artifact) error) (err error) {
	a, err := s.Acquire(kind)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := a.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	return fn(a)
}

// NewScope creates a Scope that owns the artifacts it acquires.
func (s *Stager) NewScope() *Scope {
	return &Scope{stager: s}
}

// Artifact is a transient file inside the staging directory.
type Artifact struct {
	stager   *Stager
	path     string
	kind     Kind
	released atomic.Bool
}

// Path returns the artifact's absolute file path.
func (a *Artifact) Path() string {
	return a.path
}

// Kind returns the artifact kind.
func (a *Artifact) Kind() Kind {
	return a.kind
}

// Write replaces the artifact contents with data.
func (a *Artifact) Write(data []byte) error {
	if err := os.WriteFile(a.path, data, 0o600); err != nil {
		return fmt.Errorf("%w: write %s artifact: %v", errs.ErrStaging, a.kind, err)
	}

	return nil
}

// ReadAll returns a copy of the artifact contents.
func (a *Artifact) ReadAll() ([]byte, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s artifact: %v", errs.ErrStaging, a.kind, err)
	}
	defer f.Close()

	buf := pool.GetStagingBuffer()
	defer pool.PutStagingBuffer(buf)

	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("%w: read %s artifact: %v", errs.ErrStaging, a.kind, err)
	}

	return buf.Clone(), nil
}

// Release removes the artifact file. It is idempotent and tolerates a file that was
// already deleted by someone else.
func (a *Artifact) Release() error {
	if a.released.Swap(true) {
		return nil
	}
	a.stager.active.Add(-1)

	if err := os.Remove(a.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.stager.logger.Warn("failed to remove staging artifact", "path", a.path, "error", err)
		return fmt.Errorf("%w: remove %s artifact: %v", errs.ErrStaging, a.kind, err)
	}

	return nil
}

// Scope owns the artifacts of one request.
//
// Close must be called exactly when the request ends, typically with defer.
type Scope struct {
	stager *Stager

	mu        sync.Mutex
	artifacts []*Artifact
	closed    bool
}

// Acquire creates an artifact owned by the scope.
func (sc *Scope) Acquire(kind Kind) (*Artifact, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed {
		return nil, fmt.Errorf("%w: scope already closed", errs.ErrStaging)
	}

	a, err := sc.stager.Acquire(kind)
	if err != nil {
		return nil, err
	}
	sc.artifacts = append(sc.artifacts, a)

	return a, nil
}

// Len returns the number of artifacts acquired through the scope.
func (sc *Scope) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return len(sc.artifacts)
}

// Close releases every artifact in the scope. Calling Close again is a no-op.
func (sc *Scope) Close() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.closed {
		return nil
	}
	sc.closed = true

	var errList []error
	for _, a := range sc.artifacts {
		if err := a.Release(); err != nil {
			errList = append(errList, err)
		}
	}
	sc.artifacts = nil

	return errors.Join(errList...)
}
