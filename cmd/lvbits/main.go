// lvbits compresses an image into a .bits container and reconstructs it, printing
// compression statistics.
//
// Usage:
//
//	lvbits [flags] IMAGE          compress IMAGE, then decompress the result
//	lvbits decompress [flags] FILE reconstruct the image in a .bits container
//	lvbits inspect FILE            print a container header
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/arloliu/lvbits/codec"
	_ "github.com/arloliu/lvbits/codec/execmodel" // register the exec model
	"github.com/arloliu/lvbits/codec/quant"
	"github.com/arloliu/lvbits/container"
	"github.com/arloliu/lvbits/endian"
	"github.com/arloliu/lvbits/internal/hash"
	"github.com/arloliu/lvbits/orchestrator"
	"github.com/arloliu/lvbits/session"
	"github.com/arloliu/lvbits/staging"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "inspect":
			return runInspect(args[1:], stdout)
		case "decompress":
			return runDecompress(ctx, args[1:], stdout, stderr)
		}
	}

	return runCompress(ctx, args, stdout, stderr)
}

// codecFlags are shared by the commands that run the codec.
type codecFlags struct {
	model      string
	device     string
	stagingDir string
	verbose    bool
}

func (f *codecFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.model, "model", quant.NameZstd, "codec model name ("+strings.Join(codec.DefaultRegistry().Names(), ", ")+")")
	fs.StringVar(&f.device, "device", codec.DeviceAuto, "execution device: auto, cpu or cuda")
	fs.StringVar(&f.stagingDir, "staging-dir", "", "directory for transient codec files (default: system temp)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log codec activity to stderr")
}

func (f *codecFlags) orchestrator(stderr io.Writer) (*orchestrator.Orchestrator, codec.LoadConfig, error) {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	device, err := codec.ResolveDevice(f.device)
	if err != nil {
		return nil, codec.LoadConfig{}, err
	}
	loadCfg := codec.LoadConfig{Name: f.model, Device: device}

	stagerOpts := []staging.Option{staging.WithLogger(logger)}
	if f.stagingDir != "" {
		stagerOpts = append(stagerOpts, staging.WithDir(f.stagingDir))
	}
	stager, err := staging.NewStager(stagerOpts...)
	if err != nil {
		return nil, loadCfg, err
	}

	sess, err := session.New(codec.Load, loadCfg, session.WithLogger(logger))
	if err != nil {
		return nil, loadCfg, err
	}

	orch, err := orchestrator.New(sess, stager, orchestrator.WithLogger(logger))

	return orch, loadCfg, err
}

func parseArgs(fs *pflag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%w (expected one %s argument, got %d)", errUsage, what, fs.NArg())
	}

	return fs.Arg(0), nil
}

func withSuffix(path, suffix string) string {
	dir := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	return filepath.Join(dir, stem+suffix)
}

func runCompress(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		cf       codecFlags
		output   string
		bitsFile string
		quality  float32
	)

	fs := pflag.NewFlagSet("lvbits", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	cf.register(fs)
	fs.StringVar(&output, "output", "", "reconstructed image path (default: <input>_reconstructed.png)")
	fs.StringVar(&bitsFile, "bits-file", "", "container path (default: <input>_compressed.bits)")
	fs.Float32Var(&quality, "quality", 0, "rate-distortion trade-off, higher keeps more detail (default: model default)")
	fs.Float32Var(&quality, "lmb", 0, "alias of --quality")

	input, err := parseArgs(fs, args, "IMAGE")
	if err != nil {
		return err
	}

	var q *float32
	if fs.Changed("quality") || fs.Changed("lmb") {
		q = &quality
	}
	if output == "" {
		output = withSuffix(input, "_reconstructed.png")
	}
	if bitsFile == "" {
		bitsFile = withSuffix(input, "_compressed.bits")
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	orch, loadCfg, err := cf.orchestrator(stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Using device: %s\n", loadCfg.Device)
	fmt.Fprintf(stdout, "Model: %s\n", loadCfg.Name)
	fmt.Fprintf(stdout, "\nCompressing image: %s\n", input)
	if q != nil {
		fmt.Fprintf(stdout, "Quality: %g\n", *q)
	} else {
		fmt.Fprintln(stdout, "Quality: default")
	}

	res, err := orch.CompressRequest(ctx, data, q)
	if err != nil {
		return err
	}
	if err := os.WriteFile(bitsFile, res.Container, 0o644); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "\nCompression stats:")
	fmt.Fprintf(stdout, "  Image: %dx%d (%s)\n", res.Width, res.Height, res.Input.Format)
	fmt.Fprintf(stdout, "  Original size: %s bytes (%s)\n", humanize.Comma(int64(res.OriginalSize)), humanize.IBytes(uint64(res.OriginalSize)))
	fmt.Fprintf(stdout, "  Compressed size: %s bytes (%s)\n", humanize.Comma(int64(res.CompressedSize)), humanize.IBytes(uint64(res.CompressedSize)))
	fmt.Fprintf(stdout, "  Compression ratio: %.2fx\n", res.CompressionRatio)
	fmt.Fprintf(stdout, "  Bits per pixel (BPP): %.4f\n", res.BitsPerPixel)
	fmt.Fprintf(stdout, "  Quality used: %g\n", res.Quality)

	fmt.Fprintln(stdout, "\nDecompressing...")
	dec, err := orch.DecompressRequest(ctx, res.Container)
	if err != nil {
		return err
	}
	for _, w := range dec.Warnings {
		fmt.Fprintf(stdout, "  warning: %s\n", w)
	}
	if err := os.WriteFile(output, dec.PNG, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Reconstructed image saved to: %s\n", output)
	fmt.Fprintf(stdout, "Compressed bits saved to: %s\n", bitsFile)

	return nil
}

func runDecompress(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		cf     codecFlags
		output string
	)

	fs := pflag.NewFlagSet("lvbits decompress", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	cf.register(fs)
	fs.StringVar(&output, "output", "", "reconstructed image path (default: <file>_reconstructed.png)")

	input, err := parseArgs(fs, args, "FILE")
	if err != nil {
		return err
	}
	if output == "" {
		output = withSuffix(input, "_reconstructed.png")
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	orch, _, err := cf.orchestrator(stderr)
	if err != nil {
		return err
	}

	dec, err := orch.DecompressRequest(ctx, data)
	if err != nil {
		return err
	}
	for _, w := range dec.Warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	if err := os.WriteFile(output, dec.PNG, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Reconstructed %dx%d image saved to: %s\n", dec.Width, dec.Height, output)

	return nil
}

func runInspect(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("lvbits inspect", pflag.ContinueOnError)
	input, err := parseArgs(fs, args, "FILE")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	c, err := container.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}

	fmt.Fprintf(stdout, "File:       %s\n", input)
	fmt.Fprintf(stdout, "Size:       %s bytes (%s)\n", humanize.Comma(int64(len(data))), humanize.IBytes(uint64(len(data))))
	fmt.Fprintf(stdout, "Byte order: %s (host %s)\n", endian.Name(endian.ContainerEngine()), endian.Name(endian.CheckEndianness()))
	fmt.Fprintf(stdout, "Dimensions: %dx%d\n", c.Width, c.Height)
	fmt.Fprintf(stdout, "Quality:    %g\n", c.Quality)
	fmt.Fprintf(stdout, "Shape:      %s\n", c.Shape)
	if s, err := quant.ParseShape(c.Shape); err == nil {
		fmt.Fprintf(stdout, "Latent:     %dx%dx%d step %d\n", s.Height, s.Width, s.Channels, s.Step)
	}
	fmt.Fprintf(stdout, "Payload:    %s bytes\n", humanize.Comma(int64(len(c.Payload))))
	fmt.Fprintf(stdout, "BPP:        %.4f\n", float64(len(data)*8)/float64(c.Pixels()))
	fmt.Fprintf(stdout, "Digest:     %s\n", hash.DigestHex(data))

	return nil
}

var errUsage = errors.New("usage: lvbits [flags] IMAGE | lvbits decompress [flags] FILE | lvbits inspect FILE")
