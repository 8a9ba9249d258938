package socket

import (
	"fmt"
	"net/url"
	"strconv"
)

// DeriveURL builds the WebSocket endpoint from the REST base URL the way the
// mobile client does: http becomes ws (https becomes wss), the REST port is
// bumped by one for the socket service, the API path prefix is dropped, and
// the path is /ws/{userId}.
func DeriveURL(apiBase string, userID int64) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("derive socket url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("derive socket url: unsupported scheme %q", u.Scheme)
	}

	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("derive socket url: %w", err)
		}
		u.Host = u.Hostname() + ":" + strconv.Itoa(n+1)
	}

	u.Path = fmt.Sprintf("/ws/%d", userID)
	u.RawQuery = ""
	return u.String(), nil
}
