package analysis

import "errors"

// StatusCode extracts the HTTP status from an analysis API error.
func StatusCode(err error) (int, bool) {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status, true
	}
	return 0, false
}
