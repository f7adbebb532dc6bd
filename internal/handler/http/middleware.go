package http

import (
	"mime"
	"net/http"

	apperrors "github.com/utafrali/authgate/pkg/errors"
	"github.com/utafrali/authgate/pkg/httputil"
)

var errUnsupportedMediaType = &apperrors.AppError{
	Code:    "UNSUPPORTED_MEDIA_TYPE",
	Message: "Content-Type must be application/json",
	Status:  http.StatusUnsupportedMediaType,
	Err:     apperrors.ErrInvalidInput,
}

// requireJSON rejects request bodies declared with a non-JSON content type.
// Bodies sent without a Content-Type header are decoded as JSON.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct != "" && r.ContentLength != 0 {
			mt, _, err := mime.ParseMediaType(ct)
			if err != nil || mt != "application/json" {
				httputil.WriteError(w, r, errUnsupportedMediaType, nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
