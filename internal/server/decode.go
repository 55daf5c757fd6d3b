package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const maxBodyBytes = 1 << 20

// errMalformedBody marks a body that could not be read as JSON at all.
var errMalformedBody = errors.New("malformed request body")

// fieldTypeError is a well-formed body whose field has the wrong JSON type,
// e.g. "completed": "yes".
type fieldTypeError struct {
	Field string
	Got   string
}

func (e *fieldTypeError) Error() string {
	return fmt.Sprintf("field %q must not be a %s", e.Field, e.Got)
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &fieldTypeError{Field: typeErr.Field, Got: typeErr.Value}
		}
		return fmt.Errorf("%w: %w", errMalformedBody, err)
	}
	return nil
}
