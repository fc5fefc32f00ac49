package internal

import (
	"sort"
	"strings"
)

// AddParam appends one query parameter to url in the exact form the
// production web client emits, including the legacy "?&" separator on
// URLs without an existing query. Backends already tolerate that form, so
// it is preserved byte for byte.
func AddParam(url, param, value string) string {
	sep := "&"
	if !strings.Contains(url, "?") {
		sep = "?&"
	}
	return url + sep + param + "=" + value
}

// AddParams appends the given parameters in deterministic (sorted-key)
// order, using "?" before the first pair when the URL has no query yet and
// "&" otherwise.
func AddParams(url string, params map[string]string) string {
	if len(params) == 0 {
		return url
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + strings.Join(pairs, "&")
}
