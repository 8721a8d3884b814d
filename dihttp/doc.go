/*
Package dihttp provides HTTP middleware that enters a request [di.Container] scope for each request.

Example:

	package main

	import (
		"net/http"

		"github.com/sectrean/servicekit"
		"github.com/sectrean/servicekit/core/language"
		"github.com/sectrean/servicekit/dicontext"
		"github.com/sectrean/servicekit/dihttp"
	)

	func main() {
		b := di.NewContainerBuilder()
		b.AddScope(di.ScopeRequest, di.ScopeContainer)
		b.Register("request", nil, di.Synthetic(), di.InScope(di.ScopeRequest))
		b.Register("language_manager", language.NewManager,
			di.WithArgs(di.Ref("request"), "en", []string{"en", "de"}),
			di.InScope(di.ScopeRequest),
		)

		c, err := b.Compile(ctx)

		scopeMiddleware, err := dihttp.NewRequestScopeMiddleware(c)

		handler := func(w http.ResponseWriter, r *http.Request) {
			lm := dicontext.MustGet[*language.Manager](r.Context(), "language_manager")
			w.Header().Set("Content-Language", lm.Langcode())
		}

		http.ListenAndServe(":8080", scopeMiddleware(http.HandlerFunc(handler)))
	}
*/
package dihttp
