// Package execmodel runs a codec that lives in another runtime as a subprocess.
//
// The command is invoked once per operation:
//
//	<command> [args] compress --input IN --output OUT [--quality Q] --device D
//	<command> [args] decompress --input IN --shape HEX --output OUT --device D
//
// compress must print a single JSON object {"shape":"<12 hex chars>","quality":<float>}
// on stdout. Anything written to stderr is attached to the returned error.
package execmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/format"
)

// Name is the registered model name.
const Name = "exec"

// Loader parameters.
const (
	ParamCommand = "command"
	ParamArgs    = "args" // whitespace separated
)

const maxStderr = 4 << 10

func init() {
	codec.Register(Name, Load)
}

// Model invokes an external codec command.
type Model struct {
	command string
	args    []string

	mu     sync.RWMutex
	device format.Device
}

var (
	_ codec.Model    = (*Model)(nil)
	_ codec.Preparer = (*Model)(nil)
)

// Load builds a Model from cfg.Params.
func Load(_ context.Context, cfg codec.LoadConfig) (codec.Model, error) {
	command := strings.TrimSpace(cfg.Params[ParamCommand])
	if command == "" {
		return nil, fmt.Errorf("%w: %s model requires a %q parameter", errs.ErrModelNotFound, Name, ParamCommand)
	}

	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%s model: %w", Name, err)
	}

	m := New(path, strings.Fields(cfg.Params[ParamArgs])...)
	m.device = cfg.Device

	return m, nil
}

// New creates a Model running command with the given leading args.
func New(command string, args ...string) *Model {
	return &Model{command: command, args: args, device: format.DeviceCPU}
}

// Name implements codec.Model.
func (m *Model) Name() string {
	return Name
}

// Prepare records the device passed to every invocation.
func (m *Model) Prepare(_ context.Context, opts codec.PrepareOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if opts.Device != 0 {
		m.device = opts.Device
	}

	return nil
}

func (m *Model) deviceName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.device.String()
}

type compressOutput struct {
	Shape   string  `json:"shape"`
	Quality float32 `json:"quality"`
}

// CompressFile implements codec.Model.
func (m *Model) CompressFile(ctx context.Context, srcImage, dstPayload string, quality *float32) (codec.EncodeResult, error) {
	args := []string{"compress", "--input", srcImage, "--output", dstPayload}
	if quality != nil {
		args = append(args, "--quality", strconv.FormatFloat(float64(*quality), 'g', -1, 32))
	}
	args = append(args, "--device", m.deviceName())

	stdout, err := m.run(ctx, args)
	if err != nil {
		return codec.EncodeResult{}, err
	}

	var out compressOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return codec.EncodeResult{}, fmt.Errorf("%s compress: parse output: %w", Name, err)
	}

	shape, err := container.ParseShapeMetadata(out.Shape)
	if err != nil {
		return codec.EncodeResult{}, fmt.Errorf("%s compress: %w", Name, err)
	}

	return codec.EncodeResult{Shape: shape, Quality: out.Quality}, nil
}

// DecompressFile implements codec.Model.
func (m *Model) DecompressFile(ctx context.Context, srcPayload string, shape container.ShapeMetadata, dstImage string) error {
	_, err := m.run(ctx, []string{
		"decompress",
		"--input", srcPayload,
		"--shape", shape.String(),
		"--output", dstImage,
		"--device", m.deviceName(),
	})

	return err
}

func (m *Model) run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, m.command, append(append([]string{}, m.args...), args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", Name, args[0], err, msg)
		}

		return nil, fmt.Errorf("%s %s: %w", Name, args[0], err)
	}

	return stdout.Bytes(), nil
}
