package utils

import (
	"net/http"
	"net/url"
	"strings"
)

// GetDomain returns the registrable domain (last two labels) of the request
// origin, taken from Origin, then Referer, then Host.
func GetDomain(r *http.Request) string {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		origin = r.Host
	}
	if origin == "" {
		return ""
	}
	if !strings.Contains(origin, "://") {
		origin = "https://" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	labels := strings.Split(u.Hostname(), ".")
	if len(labels) <= 2 {
		return u.Hostname()
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// CallbackURL is the redirect URI registered with a provider.
func CallbackURL(baseURL, provider string) string {
	return strings.TrimRight(baseURL, "/") + "/oauth/" + provider + "/callback"
}

// WithQuery appends params to target, keeping any query it already has.
// A target that fails to parse is returned unchanged.
func WithQuery(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
