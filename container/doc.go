// Package container implements the lvbits bitstream container: the small binary
// envelope that carries one compression result from the codec to the client and back.
//
// # Layout
//
// The layout is flat and positional. There are no tags or version fields; byte
// offsets are the only source of meaning.
//
//	Bytes  | Field          | Type    | Description
//	-------|----------------|---------|-----------------------------------------
//	0-1    | Height         | uint16  | Image height in pixels, [1, 65535]
//	2-3    | Width          | uint16  | Image width in pixels, [1, 65535]
//	4-7    | Quality        | float32 | Codec quality parameter (IEEE-754 bits)
//	8-13   | Shape          | [6]byte | Opaque codec shape descriptor
//	14-    | Payload        | []byte  | Opaque codec payload, at least 1 byte
//
// # Byte Order
//
// All multi-byte fields are big-endian (network byte order), see
// endian.ContainerEngine. Containers are therefore portable between hosts.
//
// # Validation
//
// Validation is split in two stages. Parse performs the cheap structural check
// (lengths and dimensions) as a pure function. The payload is never inspected here;
// a corrupt payload is reported by the codec when it tries to decode it, surfacing
// as errs.ErrCodecDecode.
//
// Parse uses MaxSanityDimension (100000) as its upper bound for dimensions while
// Encode uses the structural maximum MaxDimension (65535). Both are kept as is; the
// looser bound can never trigger for a 16-bit field.
//
// # Usage
//
//	data, err := container.Encode(height, width, 0.5, shape[:], payload)
//	if err != nil {
//	    return err
//	}
//
//	c, err := container.Parse(data)
//	if err != nil {
//	    return err // errs.ErrTooSmall, errs.ErrInvalidDimension
//	}
//	fmt.Println(c.Height, c.Width, c.Quality, len(c.Payload))
package container
