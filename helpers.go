package hxbind

import (
	"net/http"

	"github.com/a-h/templ"
)

// Render writes a templ component to the HTTP response.
//
// Sets Content-Type to text/html and renders the component using the
// request's context. Pages use it to serve the placeholders for their
// outputs:
//
//	func page(w http.ResponseWriter, r *http.Request) {
//	    hxbind.Render(w, r, hxbind.Placeholder("chart", "bars", nil))
//	}
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsBridgeRequest returns true if the request carries the bridge header.
//
// Handler rejects mutating requests without it. Browsers only send custom
// headers cross-origin after a CORS preflight, which keeps other sites from
// posting events into a session.
func IsBridgeRequest(r *http.Request) bool {
	return r.Header.Get(RequestHeader) == "true"
}
