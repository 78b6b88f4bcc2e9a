package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fireflyframework/resilient-gateway/config"
)

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.Chdir(origDir)
		os.RemoveAll(tempDir)
	})

	writeConfig := func(content string) {
		configPath := filepath.Join(tempDir, "config.yaml")
		err := os.WriteFile(configPath, []byte(content), 0644)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tempDir)
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				writeConfig(`
server:
  address: ":8080"
  environment: "dev"

health_check:
  interval: "10s"

logging:
  level: "info"

breaker:
  failure_rate_threshold: 40
  minimum_calls: 4
  sliding_window_size: 20
  open_state_wait: "30s"
  half_open_max_calls: 2
  call_timeout: "5s"

upstreams:
  - name: "payments"
    url: "http://localhost:9001"
  - name: "billing"
    url: "http://localhost:9002"
    breaker:
      failure_rate_threshold: 25
      open_state_wait: "10s"
`)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should parse the upstream list", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Upstreams).To(HaveLen(2))
				Expect(cfg.Upstreams[0].Name).To(Equal("payments"))
				Expect(cfg.Upstreams[1].Breaker).NotTo(BeNil())
			})

			It("should parse the breaker section", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Breaker.FailureRateThreshold).To(Equal(40.0))
				Expect(cfg.Breaker.SlidingWindowSize).To(Equal(20))
			})

			It("should resolve the gateway-wide breaker policy", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				policy, err := cfg.DefaultBreaker()
				Expect(err).NotTo(HaveOccurred())
				Expect(policy.FailureRateThreshold).To(Equal(40.0))
				Expect(policy.MinimumCalls).To(Equal(4))
				Expect(policy.OpenStateWait).To(Equal(30 * time.Second))
				Expect(policy.CallTimeout).To(Equal(5 * time.Second))
				Expect(policy.AutoHalfOpen).To(BeTrue())
			})

			It("should apply per-upstream overrides on top of the defaults", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				policy, err := cfg.BreakerFor(cfg.Upstreams[1])
				Expect(err).NotTo(HaveOccurred())
				Expect(policy.FailureRateThreshold).To(Equal(25.0))
				Expect(policy.OpenStateWait).To(Equal(10 * time.Second))
				// Untouched fields come from the defaults.
				Expect(policy.MinimumCalls).To(Equal(4))
				Expect(policy.CallTimeout).To(Equal(5 * time.Second))
			})

			It("should leave upstreams without overrides on the defaults", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())

				policy, err := cfg.BreakerFor(cfg.Upstreams[0])
				Expect(err).NotTo(HaveOccurred())
				Expect(policy.FailureRateThreshold).To(Equal(40.0))
			})
		})

		Context("with defaults filled in", func() {
			BeforeEach(func() {
				writeConfig(`
upstreams:
  - name: "payments"
    url: "http://localhost:9001"
`)
			})

			It("should fall back to the documented defaults", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Server.Environment).To(Equal(config.EnvDev))
				Expect(cfg.HealthCheck.Interval).To(Equal("10s"))
				Expect(cfg.Logging.Level).To(Equal(config.LogLevelInfo))
				Expect(cfg.Breaker.FailureRateThreshold).To(Equal(50.0))
				Expect(cfg.Breaker.OpenStateWait).To(Equal("60s"))
			})
		})

		Context("with invalid configuration", func() {
			It("should fail when no upstreams are configured", func() {
				writeConfig(`
server:
  address: ":8080"
  environment: "dev"
`)
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})

			It("should reject an upstream name containing a slash", func() {
				writeConfig(`
upstreams:
  - name: "pay/ments"
    url: "http://localhost:9001"
`)
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})

			It("should reject a non-http upstream URL", func() {
				writeConfig(`
upstreams:
  - name: "payments"
    url: "ftp://localhost:9001"
`)
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})

			It("should reject an invalid breaker duration", func() {
				writeConfig(`
breaker:
  open_state_wait: "soon"

upstreams:
  - name: "payments"
    url: "http://localhost:9001"
`)
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})

			It("should reject an unknown environment", func() {
				writeConfig(`
server:
  environment: "sandbox"

upstreams:
  - name: "payments"
    url: "http://localhost:9001"
`)
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})

			It("should reject a malformed listen address", func() {
				writeConfig(`
server:
  address: "8080"

upstreams:
  - name: "payments"
    url: "http://localhost:9001"
`)
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("BreakerFor", func() {
		It("should fail on an invalid override duration", func() {
			cfg := &config.Config{
				Breaker: config.BreakerConfig{
					FailureRateThreshold: 50,
					MinimumCalls:         5,
					SlidingWindowSize:    10,
					OpenStateWait:        "60s",
					HalfOpenMaxCalls:     3,
					CallTimeout:          "10s",
				},
			}

			_, err := cfg.BreakerFor(config.UpstreamConfig{
				Name: "payments",
				URL:  "http://localhost:9001",
				Breaker: &config.BreakerConfig{
					CallTimeout: "whenever",
				},
			})
			Expect(err).To(HaveOccurred())
		})

		It("should honor an auto_half_open override", func() {
			off := false
			cfg := &config.Config{
				Breaker: config.BreakerConfig{
					FailureRateThreshold: 50,
					MinimumCalls:         5,
					SlidingWindowSize:    10,
					OpenStateWait:        "60s",
					HalfOpenMaxCalls:     3,
					CallTimeout:          "10s",
				},
			}

			policy, err := cfg.BreakerFor(config.UpstreamConfig{
				Name:    "payments",
				URL:     "http://localhost:9001",
				Breaker: &config.BreakerConfig{AutoHalfOpen: &off},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(policy.AutoHalfOpen).To(BeFalse())
		})
	})
})
