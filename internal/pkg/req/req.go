/*
Package req provides helper functions for HTTP request parsing and data binding.

It encapsulates the logic for strict JSON binding with unified error handling,
so handlers receive either a fully-populated struct or a client-facing error.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Davnspvtltd/teamchat/internal/pkg/errs"
)

// MaxBodyBytes limits the size of JSON request bodies (1 MB). Attachments are
// never uploaded through the API server, so request bodies stay small.
const MaxBodyBytes int64 = 1 << 20

// BindJSON attempts to bind the JSON data from the HTTP request body to the destination struct dst.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

// PathInt64 parses a chi URL parameter as a positive int64 id.
func PathInt64(value string) (int64, *errs.CustomError) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}
	return id, nil
}
