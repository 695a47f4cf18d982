// Package device labels requests with a coarse client description derived from
// the User-Agent. The label is for audit correlation only and never gates access.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"claimgate/pkg/requestcontext"
)

// Label renders a User-Agent as "browser/os[/mobile]", or "bot" for crawlers.
func Label(userAgent string) string {
	if userAgent == "" {
		return "unknown"
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}
	browser, _ := ua.Browser()
	parts := []string{orUnknown(browser), orUnknown(ua.OS())}
	if ua.Mobile() {
		parts = append(parts, "mobile")
	}
	return strings.Join(parts, "/")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Middleware stores the device label in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDevice(r.Context(), Label(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
