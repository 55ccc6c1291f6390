package api

import "github.com/arloliu/lvbits/session"

// CompressResponse is the body of a successful POST /compress.
//
// Container and the other byte fields are base64 in JSON and byte strings in CBOR.
type CompressResponse struct {
	Success            bool     `json:"success" cbor:"success"`
	ID                 string   `json:"id" cbor:"id"`
	Container          []byte   `json:"container" cbor:"container"`
	OriginalSize       int      `json:"original_size" cbor:"original_size"`
	CompressedSize     int      `json:"compressed_size" cbor:"compressed_size"`
	CompressionRatio   float64  `json:"compression_ratio" cbor:"compression_ratio"`
	BitsPerPixel       float64  `json:"bits_per_pixel" cbor:"bits_per_pixel"`
	Width              int      `json:"width" cbor:"width"`
	Height             int      `json:"height" cbor:"height"`
	Quality            float32  `json:"quality" cbor:"quality"`
	InputFormat        string   `json:"input_format" cbor:"input_format"`
	Normalized         bool     `json:"normalized" cbor:"normalized"`
	DownloadURL        string   `json:"download_url" cbor:"download_url"`
	ReconstructedImage string   `json:"reconstructed_image,omitempty" cbor:"reconstructed_image,omitempty"`
	Warnings           []string `json:"warnings,omitempty" cbor:"warnings,omitempty"`
}

// DecompressResponse is the body of a successful POST /decompress.
type DecompressResponse struct {
	Success        bool     `json:"success" cbor:"success"`
	ID             string   `json:"id" cbor:"id"`
	Image          []byte   `json:"image" cbor:"image"`
	CompressedSize int      `json:"compressed_size" cbor:"compressed_size"`
	Width          int      `json:"width" cbor:"width"`
	Height         int      `json:"height" cbor:"height"`
	Quality        float32  `json:"quality" cbor:"quality"`
	Warnings       []string `json:"warnings,omitempty" cbor:"warnings,omitempty"`
	DownloadURL    string   `json:"download_url" cbor:"download_url"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string        `json:"status" cbor:"status"`
	Version   string        `json:"version,omitempty" cbor:"version,omitempty"`
	Codec     session.Stats `json:"codec" cbor:"codec"`
	Artifacts int           `json:"artifacts" cbor:"artifacts"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success" cbor:"success"`
	Error   string `json:"error" cbor:"error"`
	Code    string `json:"code" cbor:"code"`
}
