package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
	"github.com/fireflyframework/resilient-gateway/internal/handler"
	"github.com/fireflyframework/resilient-gateway/internal/upstream"
)

func gatewayConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureRateThreshold: 50,
		MinimumCalls:         2,
		SlidingWindowSize:    4,
		OpenStateWait:        time.Minute,
		HalfOpenMaxCalls:     1,
		CallTimeout:          200 * time.Millisecond,
		AutoHalfOpen:         true,
	}
}

func newGateway(upstreams map[string]*upstream.Upstream) (*handler.GatewayHandler, *circuitbreaker.Registry) {
	registry, err := circuitbreaker.NewRegistry(gatewayConfig(), slog.Default())
	Expect(err).NotTo(HaveOccurred())
	return handler.NewGatewayHandler(slog.Default(), registry, upstreams, nil), registry
}

func newUpstream(name string, h http.HandlerFunc) (*upstream.Upstream, *httptest.Server) {
	server := httptest.NewServer(h)
	serverURL, err := url.Parse(server.URL)
	Expect(err).NotTo(HaveOccurred())
	return upstream.New(name, serverURL), server
}

var _ = Describe("GatewayHandler", func() {
	Describe("Routing", func() {
		It("should return 404 for an unknown dependency", func() {
			gateway, _ := newGateway(map[string]*upstream.Upstream{})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/nowhere/orders", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should strip the routing segment before forwarding", func() {
			var seenPath string
			up, server := newUpstream("billing", func(w http.ResponseWriter, r *http.Request) {
				seenPath = r.URL.Path
				w.WriteHeader(http.StatusOK)
			})
			defer server.Close()

			gateway, _ := newGateway(map[string]*upstream.Upstream{"billing": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/billing/invoices/42", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(seenPath).To(Equal("/invoices/42"))
		})

		It("should forward bare dependency paths as the root path", func() {
			var seenPath string
			up, server := newUpstream("billing", func(w http.ResponseWriter, r *http.Request) {
				seenPath = r.URL.Path
				w.WriteHeader(http.StatusOK)
			})
			defer server.Close()

			gateway, _ := newGateway(map[string]*upstream.Upstream{"billing": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/billing", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(seenPath).To(Equal("/"))
		})
	})

	Describe("Successful calls", func() {
		It("should relay status, headers and body from the upstream", func() {
			up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"uuid":"abc"}`))
			})
			defer server.Close()

			gateway, registry := newGateway(map[string]*upstream.Upstream{"orders": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("POST", "/orders/orders", nil))

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(rec.Header().Get("X-Upstream")).To(Equal("orders"))

			body, err := io.ReadAll(rec.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"uuid":"abc"}`))

			Expect(registry.Metrics("orders").SuccessfulCalls).To(Equal(int64(1)))
		})

		It("should record response times on the upstream", func() {
			up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			defer server.Close()

			gateway, _ := newGateway(map[string]*upstream.Upstream{"orders": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/orders", nil))

			Expect(up.EWMATime()).To(BeNumerically(">", time.Duration(0)))
		})

		It("should treat upstream 4xx responses as successes", func() {
			up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			})
			defer server.Close()

			gateway, registry := newGateway(map[string]*upstream.Upstream{"orders": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/missing", nil))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(registry.Metrics("orders").SuccessfulCalls).To(Equal(int64(1)))
			Expect(registry.Metrics("orders").FailedCalls).To(Equal(int64(0)))
		})
	})

	Describe("Failing calls", func() {
		It("should relay upstream 5xx responses while counting them as failures", func() {
			up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("boom"))
			})
			defer server.Close()

			gateway, registry := newGateway(map[string]*upstream.Upstream{"orders": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/orders", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))

			body, err := io.ReadAll(rec.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("boom"))

			Expect(registry.Metrics("orders").FailedCalls).To(Equal(int64(1)))
		})

		It("should answer 502 when the upstream is unreachable", func() {
			deadURL, err := url.Parse("http://127.0.0.1:1")
			Expect(err).NotTo(HaveOccurred())
			up := upstream.New("orders", deadURL)

			gateway, registry := newGateway(map[string]*upstream.Upstream{"orders": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/orders", nil))

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(registry.Metrics("orders").FailedCalls).To(Equal(int64(1)))
		})

		It("should answer 504 when the upstream exceeds the call timeout", func() {
			up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(500 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			})
			defer server.Close()

			gateway, registry := newGateway(map[string]*upstream.Upstream{"orders": up})

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/orders", nil))

			Expect(rec.Code).To(Equal(http.StatusGatewayTimeout))
			Eventually(func() int64 {
				return registry.Metrics("orders").FailedCalls
			}).Should(Equal(int64(1)))
		})
	})

	Describe("Circuit breaker integration", func() {
		It("should fast-fail with 503 while the breaker is open", func() {
			calls := 0
			up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusOK)
			})
			defer server.Close()

			gateway, registry := newGateway(map[string]*upstream.Upstream{"orders": up})
			_, err := registry.GetOrCreate("orders", gatewayConfig())
			Expect(err).NotTo(HaveOccurred())
			registry.TransitionTo("orders", circuitbreaker.StateOpen)

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/orders", nil))

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(calls).To(Equal(0))
		})

		It("should open the breaker after repeated upstream errors", func() {
			up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})
			defer server.Close()

			gateway, registry := newGateway(map[string]*upstream.Upstream{"orders": up})

			for i := 0; i < 4; i++ {
				rec := httptest.NewRecorder()
				gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/orders", nil))
			}

			Expect(registry.State("orders")).To(Equal(circuitbreaker.StateOpen))

			rec := httptest.NewRecorder()
			gateway.ServeHTTP(rec, httptest.NewRequest("GET", "/orders/orders", nil))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})
})

var _ = Describe("Client IP extraction", func() {
	It("should prefer the first X-Forwarded-For entry", func() {
		up, server := newUpstream("orders", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		defer server.Close()

		gateway, _ := newGateway(map[string]*upstream.Upstream{"orders": up})

		req := httptest.NewRequest("GET", "/orders/orders", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()

		gateway.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})
