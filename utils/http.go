// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// Shared client for calls to the profile and auction lifecycle services.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
