package codec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/format"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	name       string
	concurrent bool
}

func (m *stubModel) Name() string { return m.name }

func (m *stubModel) CompressFile(context.Context, string, string, *float32) (EncodeResult, error) {
	return EncodeResult{}, nil
}

func (m *stubModel) DecompressFile(context.Context, string, container.ShapeMetadata, string) error {
	return nil
}

type concurrentStub struct {
	stubModel
}

func (m *concurrentStub) ConcurrentInference() bool { return m.concurrent }

func TestRegistry_LoadAndNames(t *testing.T) {
	r := NewRegistry()
	var got LoadConfig
	r.Register("b-model", func(_ context.Context, cfg LoadConfig) (Model, error) {
		got = cfg
		return &stubModel{name: cfg.Name}, nil
	})
	r.Register("a-model", func(context.Context, LoadConfig) (Model, error) {
		return &stubModel{name: "a-model"}, nil
	})

	require.Equal(t, []string{"a-model", "b-model"}, r.Names())

	cfg := LoadConfig{Name: "b-model", Device: format.DeviceCPU, Params: map[string]string{"k": "v"}}
	m, err := r.Loader()(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, "b-model", m.Name())
	require.Equal(t, cfg, got)
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Load(context.Background(), LoadConfig{Name: "missing"})
	require.ErrorIs(t, err, errs.ErrModelNotFound)
	require.Contains(t, err.Error(), `"missing"`)
}

func TestDefaultRegistry(t *testing.T) {
	Register("codec-test-default", func(context.Context, LoadConfig) (Model, error) {
		return &stubModel{name: "codec-test-default"}, nil
	})

	m, err := Load(context.Background(), LoadConfig{Name: "codec-test-default"})
	require.NoError(t, err)
	require.Equal(t, "codec-test-default", m.Name())
	require.Contains(t, DefaultRegistry().Names(), "codec-test-default")
}

func TestSupportsConcurrency(t *testing.T) {
	require.False(t, SupportsConcurrency(&stubModel{}))
	require.False(t, SupportsConcurrency(&concurrentStub{}))
	require.True(t, SupportsConcurrency(&concurrentStub{stubModel{concurrent: true}}))
}

func TestResolveDevice(t *testing.T) {
	orig := nvidiaDeviceNode
	t.Cleanup(func() { nvidiaDeviceNode = orig })

	nvidiaDeviceNode = filepath.Join(t.TempDir(), "missing")
	t.Setenv("CUDA_VISIBLE_DEVICES", "0")

	d, err := ResolveDevice("auto")
	require.NoError(t, err)
	require.Equal(t, format.DeviceCPU, d)

	node := filepath.Join(t.TempDir(), "nvidia0")
	require.NoError(t, os.WriteFile(node, nil, 0o600))
	nvidiaDeviceNode = node

	d, err = ResolveDevice("")
	require.NoError(t, err)
	require.Equal(t, format.DeviceCUDA, d)

	t.Setenv("CUDA_VISIBLE_DEVICES", "-1")
	d, err = ResolveDevice(DeviceAuto)
	require.NoError(t, err)
	require.Equal(t, format.DeviceCPU, d)

	d, err = ResolveDevice("cuda")
	require.NoError(t, err)
	require.Equal(t, format.DeviceCUDA, d)

	_, err = ResolveDevice("abacus")
	require.Error(t, err)
}
