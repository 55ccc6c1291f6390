package execmodel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arloliu/lvbits/codec"
	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/errs"
	"github.com/arloliu/lvbits/format"
	"github.com/stretchr/testify/require"
)

// fakeCodec copies its input to its output and records its arguments.
const fakeCodec = `#!/bin/sh
for a in "$@"; do
	if [ "$a" = "--fail" ]; then echo "model exploded" >&2; exit 3; fi
done
op="$1"; shift
echo "$op $*" > "$LOG"
while [ $# -gt 0 ]; do
	case "$1" in
		--input) in="$2"; shift 2 ;;
		--output) out="$2"; shift 2 ;;
		*) shift ;;
	esac
done
cp "$in" "$out"
if [ "$op" = "compress" ]; then
	printf '{"shape":"000200020308","quality":2.5}'
fi
`

func writeScript(t *testing.T) (string, string) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-codec")
	require.NoError(t, os.WriteFile(script, []byte(fakeCodec), 0o700))

	logPath := filepath.Join(dir, "args.log")
	t.Setenv("LOG", logPath)

	return script, logPath
}

func TestModel_CompressAndDecompress(t *testing.T) {
	script, logPath := writeScript(t)
	m := New(script)
	require.NoError(t, m.Prepare(context.Background(), codec.PrepareOptions{Device: format.DeviceCUDA}))

	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	payload := filepath.Join(dir, "out.bits")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o600))

	q := float32(4)
	res, err := m.CompressFile(context.Background(), src, payload, &q)
	require.NoError(t, err)
	require.Equal(t, float32(2.5), res.Quality)
	require.Equal(t, container.ShapeMetadata{0, 2, 0, 2, 3, 8}, res.Shape)

	args, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(args), "--quality 4")
	require.Contains(t, string(args), "--device cuda")

	out := filepath.Join(dir, "out.png")
	require.NoError(t, m.DecompressFile(context.Background(), payload, res.Shape, out))

	args, err = os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(args), "decompress")
	require.Contains(t, string(args), "--shape 000200020308")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "pixels", string(data))
}

func TestModel_NilQualityOmitsFlag(t *testing.T) {
	script, logPath := writeScript(t)
	m := New(script)

	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	_, err := m.CompressFile(context.Background(), src, filepath.Join(dir, "out.bits"), nil)
	require.NoError(t, err)

	args, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NotContains(t, string(args), "--quality")
	require.Contains(t, string(args), "--device cpu")
}

func TestModel_FailureIncludesStderr(t *testing.T) {
	script, _ := writeScript(t)
	m := New(script, "--fail")

	_, err := m.CompressFile(context.Background(), "in", "out", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model exploded")
}

func TestLoad(t *testing.T) {
	_, err := Load(context.Background(), codec.LoadConfig{Name: Name})
	require.ErrorIs(t, err, errs.ErrModelNotFound)

	_, err = Load(context.Background(), codec.LoadConfig{
		Name:   Name,
		Params: map[string]string{ParamCommand: "lvbits-no-such-binary"},
	})
	require.Error(t, err)

	script, _ := writeScript(t)
	m, err := codec.Load(context.Background(), codec.LoadConfig{
		Name:   Name,
		Device: format.DeviceCPU,
		Params: map[string]string{ParamCommand: script, ParamArgs: "--model  vae"},
	})
	require.NoError(t, err)
	require.Equal(t, Name, m.Name())
	require.Equal(t, []string{"--model", "vae"}, m.(*Model).args)
	require.False(t, codec.SupportsConcurrency(m))
}
