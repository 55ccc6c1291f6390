package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// cborEnc uses Core Deterministic Encoding so identical responses produce identical bytes.
var cborEnc cbor.EncMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("api: CBOR encoder initialization failed: " + err.Error())
	}
}

// wantsCBOR reports whether the Accept header lists application/cbor.
func wantsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == contentTypeCBOR {
			return true
		}
	}

	return false
}

func writeResponse(w http.ResponseWriter, r *http.Request, status int, v any) {
	contentType := contentTypeJSON
	var (
		body []byte
		err  error
	)
	if wantsCBOR(r) {
		contentType = contentTypeCBOR
		body, err = cborEnc.Marshal(v)
	} else {
		body, err = json.Marshal(v)
	}

	if err != nil {
		http.Error(w, internalMessage, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
