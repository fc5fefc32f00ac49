package internal

// StatusRange buckets an HTTP status code the way the fetch engine
// classifies outcomes.
type StatusRange int

const (
	// RangeUnknown covers absent or out-of-band status codes.
	RangeUnknown StatusRange = iota
	// RangeInformational covers 1xx.
	RangeInformational
	// RangeSuccessful covers 2xx.
	RangeSuccessful
	// RangeRedirection covers 3xx.
	RangeRedirection
	// RangeClientError covers 4xx.
	RangeClientError
	// RangeServerError covers 5xx.
	RangeServerError
)

// ClassifyStatus maps an HTTP status code to its range.
func ClassifyStatus(code int) StatusRange {
	switch {
	case code >= 100 && code <= 199:
		return RangeInformational
	case code >= 200 && code <= 299:
		return RangeSuccessful
	case code >= 300 && code <= 399:
		return RangeRedirection
	case code >= 400 && code <= 499:
		return RangeClientError
	case code >= 500 && code <= 599:
		return RangeServerError
	default:
		return RangeUnknown
	}
}
