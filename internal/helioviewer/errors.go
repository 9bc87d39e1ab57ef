package helioviewer

import "fmt"

// FetchError reports a failed API request. StatusCode is zero when no
// response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.StatusCode != 200:
		return fmt.Sprintf("helioviewer: unexpected status code %d from %s", e.StatusCode, e.URL)
	case e.Err != nil:
		return fmt.Sprintf("helioviewer: %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("helioviewer: request to %s failed", e.URL)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
