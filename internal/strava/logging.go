package strava

import (
	"log"
	"net/http"
	"time"
)

// logRequest records an outbound call without its query string, which can
// carry paging cursors and tokens.
func logRequest(req *http.Request, status int, elapsed time.Duration) {
	if req == nil || req.URL == nil {
		return
	}
	u := *req.URL
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	log.Printf("strava request: %s %s -> %d (%s)", req.Method, u.String(), status, elapsed.Round(time.Millisecond))
}
