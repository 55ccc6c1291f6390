// Package lvbits compresses images with a learned codec and frames the result in a
// compact bitstream container.
//
// A container is a 14-byte big-endian header (height, width, quality, 6-byte shape
// descriptor) followed by the codec payload. The codec itself is a black box loaded
// once per process and driven through transient staging files.
//
// # Basic Usage
//
// Framing a payload produced elsewhere:
//
//	data, _ := lvbits.Pack(480, 640, 2.0, shape, payload)
//	c, _ := lvbits.Unpack(data)
//	fmt.Println(c.Width, c.Height, c.Quality)
//
// Running the full pipeline in-process:
//
//	svc, _ := lvbits.NewService(codec.LoadConfig{Name: quant.NameZstd, Device: format.DeviceCPU})
//	res, _ := svc.CompressRequest(ctx, pngBytes, nil)
//	out, _ := svc.DecompressRequest(ctx, res.Container)
//
// # Package Structure
//
// This package provides convenient top-level wrappers. The container, codec,
// session, staging and orchestrator packages expose the full API; package api
// serves it over HTTP.
package lvbits

import (
	"log/slog"

	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/internal/options"
	"github.com/arloliu/lvbits/orchestrator"
	"github.com/arloliu/lvbits/session"
	"github.com/arloliu/lvbits/staging"

	_ "github.com/arloliu/lvbits/codec/execmodel" // register the exec model
	_ "github.com/arloliu/lvbits/codec/quant"     // register the reference models
)

// Pack serializes a container. See container.Encode for the validation rules.
func Pack(height, width int, quality float32, shape []byte, payload []byte) ([]byte, error) {
	return container.Encode(height, width, quality, shape, payload)
}

// Unpack validates and parses a container. See container.Parse.
func Unpack(data []byte) (container.Container, error) {
	return container.Parse(data)
}

// Service bundles a staging area, a codec session and an orchestrator.
type Service struct {
	*orchestrator.Orchestrator

	Session *session.Session
	Stager  *staging.Stager
}

type serviceConfig struct {
	stagingDir string
	logger     *slog.Logger
	retryInit  bool
	registry   *codec.Registry
}

// ServiceOption configures NewService.
type ServiceOption = options.Option[*serviceConfig]

// WithStagingDir sets the directory for transient codec files.
func WithStagingDir(dir string) ServiceOption {
	return options.NoError(func(c *serviceConfig) {
		c.stagingDir = dir
	})
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) ServiceOption {
	return options.NoError(func(c *serviceConfig) {
		c.logger = logger
	})
}

// WithInitRetry lets later requests retry a failed model load.
func WithInitRetry(retry bool) ServiceOption {
	return options.NoError(func(c *serviceConfig) {
		c.retryInit = retry
	})
}

// WithRegistry loads models from r instead of the default registry.
func WithRegistry(r *codec.Registry) ServiceOption {
	return options.NoError(func(c *serviceConfig) {
		c.registry = r
	})
}

// NewService builds an in-process compression service. The model is loaded on first use.
func NewService(cfg codec.LoadConfig, opts ...ServiceOption) (*Service, error) {
	sc := &serviceConfig{
		logger:   slog.Default(),
		registry: codec.DefaultRegistry(),
	}
	if err := options.Apply(sc, opts...); err != nil {
		return nil, err
	}

	stagerOpts := []staging.Option{staging.WithLogger(sc.logger)}
	if sc.stagingDir != "" {
		stagerOpts = append(stagerOpts, staging.WithDir(sc.stagingDir))
	}
	stager, err := staging.NewStager(stagerOpts...)
	if err != nil {
		return nil, err
	}

	sess, err := session.New(sc.registry.Loader(), cfg,
		session.WithInitRetry(sc.retryInit),
		session.WithLogger(sc.logger),
	)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(sess, stager, orchestrator.WithLogger(sc.logger))
	if err != nil {
		return nil, err
	}

	return &Service{Orchestrator: orch, Session: sess, Stager: stager}, nil
}
