package circuitbreaker_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
)

var _ = Describe("State", func() {
	It("should print state names", func() {
		Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
		Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
		Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF_OPEN"))
	})

	Describe("ParseState", func() {
		It("should round-trip every state name", func() {
			for _, s := range []circuitbreaker.State{
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
				circuitbreaker.StateHalfOpen,
			} {
				parsed, err := circuitbreaker.ParseState(s.String())
				Expect(err).NotTo(HaveOccurred())
				Expect(parsed).To(Equal(s))
			}
		})

		It("should accept lower case and surrounding spaces", func() {
			parsed, err := circuitbreaker.ParseState(" half_open ")
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(circuitbreaker.StateHalfOpen))
		})

		It("should reject unknown names", func() {
			_, err := circuitbreaker.ParseState("ajar")
			Expect(err).To(HaveOccurred())
		})
	})
})
