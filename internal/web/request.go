// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plant Logger Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/samber/oops"

	"github.com/plantlogger/plantlogger/internal/auth"
)

const maxBodyBytes = 1 << 20

// readFields extracts string fields from a JSON object body or a
// form-encoded body. Missing fields read as "".
func readFields(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	fields := make(map[string]string, len(names))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // unparseable means form
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, oops.Code("HTTP_MALFORMED_BODY").Wrapf(auth.ErrValidation, "malformed JSON body: %s", err.Error())
		}
		for _, name := range names {
			if s, ok := body[name].(string); ok {
				fields[name] = s
			}
		}
		return fields, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, oops.Code("HTTP_MALFORMED_BODY").Wrapf(auth.ErrValidation, "malformed form body: %s", err.Error())
	}
	for _, name := range names {
		fields[name] = r.PostForm.Get(name)
	}
	return fields, nil
}
