// Package quant is a deterministic, in-process reference codec.
//
// It stands in for the learned model so the service, the CLI and the tests run
// without external weights. The pipeline is deliberately simple:
//
//  1. quantize each RGB sample with a step derived from the quality parameter
//  2. lay the samples out as three planes and row-delta code them
//  3. run the result through an entropy stage from package compress
//
// Quality behaves like the learned model's lambda: larger values mean finer
// quantization and larger payloads. The step is clamp(round(16/q), 1, 128), so a
// quality of 16 or more is lossless. The default quality is 2 (step 8).
//
// # Shape Metadata
//
//	Bytes | Field    | Type
//	------|----------|-----------
//	0-1   | Height   | uint16 BE
//	2-3   | Width    | uint16 BE
//	4     | Channels | uint8 (3)
//	5     | Step     | uint8
//
// # Payload
//
// The first payload byte is the format.CompressionType tag of the entropy stage,
// followed by the compressed planes. Any variant decodes payloads of any other.
//
// Registered model names: quant-zstd, quant-s2, quant-lz4, quant-none.
package quant
