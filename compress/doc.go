// Package compress provides the entropy stage of the lvbits reference codec.
//
// The reference codec (package codec/quant) quantizes an image into planar,
// row-delta coded samples and hands the result to one of the codecs below. The
// chosen algorithm is recorded as a one-byte tag at the start of the codec payload,
// so any variant can decode payloads produced by any other.
//
// Supported algorithms:
//   - None: no compression, the payload is the raw sample stream
//   - Zstd: best ratio; pooled klauspost encoders/decoders, or valyala/gozstd when
//     built with -tags gozstd (requires cgo)
//   - S2: fast with good ratio
//   - LZ4: fastest decode, block format
//
// Usage:
//
//	codec, err := compress.CreateCodec(format.CompressionZstd, "latent")
//	if err != nil {
//	    return err
//	}
//	packed, err := codec.Compress(samples)
//	samples, err = codec.Decompress(packed)
//
// All codecs are safe for concurrent use.
package compress
