package upstream

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

// Upstream represents one remote dependency: its URL, a reverse proxy for
// forwarding calls, health status, and response time monitoring.
type Upstream struct {
	name             string
	url              *url.URL
	proxy            *httputil.ReverseProxy
	mutex            sync.Mutex
	isHealthy        bool
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

const ewmaAlpha = 0.2

type proxyErrorKey struct{}

// New creates an Upstream for the named dependency. The upstream starts
// healthy. Transport errors from the proxy are written into the capture
// slot carried by the request context instead of the default 502 response,
// so the caller can classify them as breaker failures.
func New(name string, u *url.URL) *Upstream {
	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if slot, ok := r.Context().Value(proxyErrorKey{}).(*error); ok {
			*slot = err
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}

	return &Upstream{
		name:      name,
		url:       u,
		proxy:     proxy,
		isHealthy: true,
	}
}

// CaptureProxyError returns a request whose context carries a slot for the
// proxy's transport error, plus a pointer the caller reads after the proxy
// round trip completes.
func CaptureProxyError(r *http.Request) (*http.Request, *error) {
	var slot error
	ctx := context.WithValue(r.Context(), proxyErrorKey{}, &slot)
	return r.WithContext(ctx), &slot
}

// Name returns the dependency name.
func (u *Upstream) Name() string {
	return u.name
}

// URL returns the upstream server URL.
func (u *Upstream) URL() *url.URL {
	return u.url
}

// ReverseProxy returns the HTTP reverse proxy for this upstream.
func (u *Upstream) ReverseProxy() *httputil.ReverseProxy {
	return u.proxy
}

// IsHealthy returns true if the upstream is currently healthy.
func (u *Upstream) IsHealthy() bool {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.isHealthy
}

// SetHealthy updates the upstream's health status.
// Returns true if the status changed, false if it was already in that state.
func (u *Upstream) SetHealthy(healthy bool) (changed bool) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.isHealthy == healthy {
		return false
	}

	u.isHealthy = healthy
	return true
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest call duration.
func (u *Upstream) RecordResponse(duration time.Duration) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		u.ewmaResponseTime = duration
		u.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	u.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(u.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the exponentially weighted moving average response time.
// Returns 0 if no responses have been recorded yet.
func (u *Upstream) EWMATime() time.Duration {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		return 0
	}

	return u.ewmaResponseTime
}
