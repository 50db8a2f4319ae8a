package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/trafficd/internal/backend"
)

var _ = Describe("Backend", func() {
	var (
		testURL *url.URL
		b       *backend.Backend
	)

	BeforeEach(func() {
		var err error
		testURL, err = url.Parse("http://localhost:8081")
		Expect(err).NotTo(HaveOccurred())
		b = backend.New(testURL, 1.0, "")
	})

	Describe("New", func() {
		It("should create a backend with the correct URL", func() {
			Expect(b).NotTo(BeNil())
			Expect(b.URL()).To(Equal(testURL))
		})

		It("should expose the endpoint as host:port", func() {
			Expect(b.Endpoint()).To(Equal("localhost:8081"))
		})

		It("should start healthy", func() {
			Expect(b.IsHealthy()).To(BeTrue())
		})

		It("should have zero open connections", func() {
			Expect(b.OpenConnections()).To(Equal(0))
		})

		It("should provide a reverse proxy", func() {
			Expect(b.ReverseProxy()).NotTo(BeNil())
		})

		It("should default the health path", func() {
			Expect(b.HealthPath()).To(Equal(backend.DefaultHealthPath))
		})

		It("should prefix a bare health path with a slash", func() {
			b = backend.New(testURL, 1.0, "status")
			Expect(b.HealthPath()).To(Equal("/status"))
		})

		It("should build the probe URL from endpoint and health path", func() {
			b = backend.New(testURL, 1.0, "/ping")
			Expect(b.HealthURL()).To(Equal("http://localhost:8081/ping"))
		})

		It("should default non-positive weights to 1.0", func() {
			b = backend.New(testURL, 0, "")
			Expect(b.Weight()).To(Equal(1.0))

			b = backend.New(testURL, -3, "")
			Expect(b.Weight()).To(Equal(1.0))
		})

		It("should keep a declared weight", func() {
			b = backend.New(testURL, 2.5, "")
			Expect(b.Weight()).To(Equal(2.5))
		})
	})

	Describe("Health management", func() {
		It("should report a change when the status flips", func() {
			changed := b.SetHealthy(false)
			Expect(changed).To(BeTrue())
			Expect(b.IsHealthy()).To(BeFalse())
		})

		It("should report no change when the status is repeated", func() {
			b.SetHealthy(false)
			changed := b.SetHealthy(false)
			Expect(changed).To(BeFalse())
		})
	})

	Describe("Connection tracking", func() {
		It("should increment and decrement", func() {
			b.IncrementConn()
			b.IncrementConn()
			Expect(b.OpenConnections()).To(Equal(2))

			b.DecrementConn()
			Expect(b.OpenConnections()).To(Equal(1))
		})

		It("should never go negative", func() {
			b.DecrementConn()
			b.DecrementConn()
			Expect(b.OpenConnections()).To(Equal(0))
		})

		It("should survive concurrent updates without losing counts", func() {
			var wg sync.WaitGroup

			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b.IncrementConn()
					b.DecrementConn()
				}()
			}
			wg.Wait()

			Expect(b.OpenConnections()).To(Equal(0))
		})
	})

	Describe("Response time tracking", func() {
		It("should return 0 before the first sample", func() {
			Expect(b.EWMATime()).To(Equal(time.Duration(0)))
		})

		It("should adopt the first sample as-is", func() {
			b.RecordResponse(100 * time.Millisecond)
			Expect(b.EWMATime()).To(Equal(100 * time.Millisecond))
		})

		It("should smooth subsequent samples", func() {
			b.RecordResponse(100 * time.Millisecond)
			b.RecordResponse(200 * time.Millisecond)

			ewma := b.EWMATime()
			Expect(ewma).To(BeNumerically(">", 100*time.Millisecond))
			Expect(ewma).To(BeNumerically("<", 200*time.Millisecond))
		})
	})

	Describe("WithProxyErrorCapture", func() {
		It("should read nil when nothing was captured", func() {
			_, captured := backend.WithProxyErrorCapture(context.Background())
			Expect(captured()).To(BeNil())
		})

		It("should hand the captured error back through the reader", func() {
			ctx, captured := backend.WithProxyErrorCapture(context.Background())

			// Drive the proxy ErrorHandler the way a transport failure would.
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			w := httptest.NewRecorder()
			b.ReverseProxy().ErrorHandler(w, req, errors.New("connection refused"))

			Expect(captured()).To(MatchError("connection refused"))
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})
})
