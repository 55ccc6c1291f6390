// Package session owns the process-wide codec handle.
//
// A Session loads its model lazily on first use. Concurrent first callers wait for
// a single load and share its outcome, so the loader runs at most once per
// successful initialization. A failed load is terminal unless the session was
// created with WithInitRetry(true).
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/internal/imageutil"
	"github.com/arloliu/lvbits/internal/options"
	"github.com/arloliu/lvbits/internal/pool"
	"github.com/arloliu/lvbits/staging"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateInitFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateInitFailed:
		return "init_failed"
	default:
		return "unknown"
	}
}

// Option configures a Session.
type Option = options.Option[*Session]

// WithInitRetry lets a later Get retry a failed load instead of returning the
// cached failure.
func WithInitRetry(retry bool) Option {
	return options.NoError(func(s *Session) {
		s.retryInit = retry
	})
}

// WithSerializedInvocation forces codec calls through a single lock even when the
// model reports concurrent inference support.
func WithSerializedInvocation(serialize bool) Option {
	return options.NoError(func(s *Session) {
		s.forceSerial = serialize
	})
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	})
}

// Session is a lazily initialized, shared codec handle.
type Session struct {
	loader      codec.Loader
	cfg         codec.LoadConfig
	logger      *slog.Logger
	retryInit   bool
	forceSerial bool

	mu       sync.Mutex
	state    atomic.Int32
	initDone chan struct{}
	model    codec.Model
	initErr  error
	serial   bool

	callMu sync.Mutex

	loads          atomic.Uint64
	encodes        atomic.Uint64
	decodes        atomic.Uint64
	encodeFailures atomic.Uint64
	decodeFailures atomic.Uint64
}

// New creates an uninitialized session. The loader is not called until the first Get.
func New(loader codec.Loader, cfg codec.LoadConfig, opts ...Option) (*Session, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: nil codec loader", errs.ErrInvalidConfig)
	}

	s := &Session{
		loader: loader,
		cfg:    cfg,
		logger: slog.Default(),
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Get returns the ready model, loading it if needed.
//
// Returns an error wrapping ErrCodecUnavailable when the load fails, or ctx.Err()
// if ctx ends while waiting for another caller's load.
func (s *Session) Get(ctx context.Context) (codec.Model, error) {
	for {
		s.mu.Lock()
		switch s.State() {
		case StateReady:
			m := s.model
			s.mu.Unlock()

			return m, nil

		case StateInitFailed:
			if !s.retryInit {
				err := s.initErr
				s.mu.Unlock()

				return nil, err
			}

		case StateInitializing:
			done := s.initDone
			s.mu.Unlock()

			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		// this caller wins the initialization
		done := make(chan struct{})
		s.initDone = done
		s.state.Store(int32(StateInitializing))
		s.mu.Unlock()

		m, err := s.load(context.WithoutCancel(ctx))

		s.mu.Lock()
		if err != nil {
			s.initErr = err
			s.state.Store(int32(StateInitFailed))
		} else {
			s.model = m
			s.initErr = nil
			s.serial = s.forceSerial || !codec.SupportsConcurrency(m)
			s.state.Store(int32(StateReady))
		}
		close(done)
		s.mu.Unlock()

		return m, err
	}
}

func (s *Session) load(ctx context.Context) (codec.Model, error) {
	start := time.Now()
	s.loads.Add(1)
	s.logger.Info("loading codec model", "model", s.cfg.Name, "device", s.cfg.Device.String())

	m, err := s.loadAndPrepare(ctx)
	if err != nil {
		s.logger.Error("codec model load failed", "model", s.cfg.Name, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrCodecUnavailable, s.cfg.Name, err)
	}

	s.logger.Info("codec model ready",
		"model", m.Name(),
		"concurrent", codec.SupportsConcurrency(m),
		"elapsed", time.Since(start),
	)

	return m, nil
}

// loadAndPrepare converts a panicking loader or Prepare hook into an error, so the
// winner of Get always leaves the Initializing state.
func (s *Session) loadAndPrepare(ctx context.Context) (m codec.Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	m, err = s.loader(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("loader returned no model")
	}

	if p, ok := m.(codec.Preparer); ok {
		err = p.Prepare(ctx, codec.PrepareOptions{
			Device:      s.cfg.Device,
			Inference:   true,
			Compression: true,
		})
		if err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (s *Session) invoke(fn func() error) error {
	s.mu.Lock()
	serial := s.serial
	s.mu.Unlock()

	if serial {
		s.callMu.Lock()
		defer s.callMu.Unlock()
	}

	return fn()
}

// Encoded is the result of Encode.
type Encoded struct {
	Payload []byte
	Shape   container.ShapeMetadata
	Quality float32
}

// Encode stages img as PNG inside scope, runs the codec and returns the payload.
//
// Codec failures wrap ErrCodecEncode; staging failures wrap ErrStaging.
func (s *Session) Encode(ctx context.Context, scope *staging.Scope, img image.Image, quality *float32) (*Encoded, error) {
	m, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	src, err := scope.Acquire(staging.KindImage)
	if err != nil {
		return nil, err
	}

	buf := pool.GetStagingBuffer()
	err = imageutil.EncodePNG(buf, img)
	if err == nil {
		err = src.Write(buf.Bytes())
	}
	pool.PutStagingBuffer(buf)
	if err != nil {
		return nil, err
	}

	dst, err := scope.Acquire(staging.KindPayload)
	if err != nil {
		return nil, err
	}

	hooks := HooksFrom(ctx)
	hooks.Staged()

	var res codec.EncodeResult
	err = s.invoke(func() error {
		hooks.Invoked()
		var cerr error
		res, cerr = m.CompressFile(ctx, src.Path(), dst.Path(), quality)

		return cerr
	})
	if err != nil {
		s.encodeFailures.Add(1)
		return nil, fmt.Errorf("%w: %w", errs.ErrCodecEncode, err)
	}

	payload, err := dst.ReadAll()
	if err != nil {
		s.encodeFailures.Add(1)
		return nil, err
	}
	if len(payload) == 0 {
		s.encodeFailures.Add(1)
		return nil, fmt.Errorf("%w: %s produced an empty payload", errs.ErrCodecEncode, m.Name())
	}

	s.encodes.Add(1)

	return &Encoded{Payload: payload, Shape: res.Shape, Quality: res.Quality}, nil
}

// Decoded is the result of Decode.
type Decoded struct {
	Image  image.Image
	Data   []byte // image file written by the codec
	Format string // format name of Data, e.g. "png"
}

// Decode stages payload inside scope, runs the codec and decodes the image it writes.
//
// Codec failures, including an unreadable output image, wrap ErrCodecDecode.
func (s *Session) Decode(ctx context.Context, scope *staging.Scope, payload []byte, shape container.ShapeMetadata) (*Decoded, error) {
	m, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	src, err := scope.Acquire(staging.KindPayload)
	if err != nil {
		return nil, err
	}
	if err := src.Write(payload); err != nil {
		return nil, err
	}

	dst, err := scope.Acquire(staging.KindImage)
	if err != nil {
		return nil, err
	}

	hooks := HooksFrom(ctx)
	hooks.Staged()

	err = s.invoke(func() error {
		hooks.Invoked()
		return m.DecompressFile(ctx, src.Path(), shape, dst.Path())
	})
	if err != nil {
		s.decodeFailures.Add(1)
		return nil, fmt.Errorf("%w: %w", errs.ErrCodecDecode, err)
	}

	data, err := dst.ReadAll()
	if err != nil {
		s.decodeFailures.Add(1)
		return nil, err
	}

	img, info, err := imageutil.Decode(data)
	if err != nil {
		s.decodeFailures.Add(1)
		return nil, fmt.Errorf("%w: %s output: %w", errs.ErrCodecDecode, m.Name(), err)
	}

	s.decodes.Add(1)

	return &Decoded{Image: img, Data: data, Format: info.Format}, nil
}

// Stats is a snapshot of session counters.
type Stats struct {
	State          string `json:"state" cbor:"state"`
	Model          string `json:"model" cbor:"model"`
	Device         string `json:"device" cbor:"device"`
	Serialized     bool   `json:"serialized" cbor:"serialized"`
	Loads          uint64 `json:"loads" cbor:"loads"`
	Encodes        uint64 `json:"encodes" cbor:"encodes"`
	Decodes        uint64 `json:"decodes" cbor:"decodes"`
	EncodeFailures uint64 `json:"encode_failures" cbor:"encode_failures"`
	DecodeFailures uint64 `json:"decode_failures" cbor:"decode_failures"`
	InitError      string `json:"init_error,omitempty" cbor:"init_error,omitempty"`
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		State:      s.State().String(),
		Model:      s.cfg.Name,
		Device:     s.cfg.Device.String(),
		Serialized: s.serial,
	}
	if s.initErr != nil {
		st.InitError = s.initErr.Error()
	}
	s.mu.Unlock()

	st.Loads = s.loads.Load()
	st.Encodes = s.encodes.Load()
	st.Decodes = s.decodes.Load()
	st.EncodeFailures = s.encodeFailures.Load()
	st.DecodeFailures = s.decodeFailures.Load()

	return st
}
