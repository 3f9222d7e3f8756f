package http

import (
	"mime"
	"net/http"

	"github.com/itsobito471-bot/thebottlestories/pkg/httputil"
)

// ContentType rejects request bodies whose media type is not one of
// allowed. Requests without a Content-Type are let through.
func ContentType(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				if ct := r.Header.Get("Content-Type"); ct != "" {
					mediaType, _, err := mime.ParseMediaType(ct)
					if _, ok := set[mediaType]; err != nil || !ok {
						httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
							Error: &httputil.ErrorResponse{
								Code:    "UNSUPPORTED_MEDIA_TYPE",
								Message: "unsupported Content-Type " + ct,
							},
						})
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
