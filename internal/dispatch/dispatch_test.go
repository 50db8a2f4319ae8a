package dispatch_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/trafficd/internal/backend"
	"github.com/angeloszaimis/trafficd/internal/circuitbreaker"
	"github.com/angeloszaimis/trafficd/internal/dispatch"
)

func newBackend(rawURL string) *backend.Backend {
	u, err := url.Parse(rawURL)
	Expect(err).NotTo(HaveOccurred())
	return backend.New(u, 1.0, "")
}

var _ = Describe("Dispatcher", func() {
	var (
		log      *slog.Logger
		breakers *circuitbreaker.Registry
		d        *dispatch.Dispatcher
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		breakers = circuitbreaker.NewRegistry(3, time.Minute)
		d = dispatch.NewDispatcher(breakers, log)
	})

	Describe("Dispatch", func() {
		It("should forward the request and report the upstream status", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				io.WriteString(w, r.URL.Path)
			}))
			defer srv.Close()

			b := newBackend(srv.URL)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)

			status, err := d.Dispatch(rec, req, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusCreated))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Body.String()).To(Equal("/api/users"))
		})

		It("should record the upstream response time", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			b := newBackend(srv.URL)
			Expect(b.EWMATime()).To(BeZero())

			_, err := d.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), b)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.EWMATime()).To(BeNumerically(">", 0))
		})

		It("should raise the open connection count for the duration of the attempt", func() {
			release := make(chan struct{})
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-release
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			b := newBackend(srv.URL)

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				_, err := d.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), b)
				Expect(err).NotTo(HaveOccurred())
			}()

			Eventually(b.OpenConnections).Should(Equal(1))

			close(release)

			Eventually(done).Should(BeClosed())
			Expect(b.OpenConnections()).To(BeZero())
		})

		It("should return ErrBackendUnreachable when the backend is down", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			url := srv.URL
			srv.Close()

			b := newBackend(url)
			rec := httptest.NewRecorder()

			status, err := d.Dispatch(rec, httptest.NewRequest(http.MethodGet, "/", nil), b)
			Expect(err).To(MatchError(dispatch.ErrBackendUnreachable))
			Expect(status).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring("backend unreachable"))
		})

		It("should restore the connection count after a failed dispatch", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			url := srv.URL
			srv.Close()

			b := newBackend(url)

			// A pre-existing in-flight request must survive untouched:
			// the failed dispatch decrements exactly once.
			b.IncrementConn()

			_, err := d.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), b)
			Expect(err).To(MatchError(dispatch.ErrBackendUnreachable))
			Expect(b.OpenConnections()).To(Equal(1))

			b.DecrementConn()
			Expect(b.OpenConnections()).To(BeZero())
		})

		It("should not record a response time for failed dispatches", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			url := srv.URL
			srv.Close()

			b := newBackend(url)

			_, err := d.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), b)
			Expect(err).To(HaveOccurred())
			Expect(b.EWMATime()).To(BeZero())
		})

		It("should open the breaker once failures cross the threshold", func() {
			breakers = circuitbreaker.NewRegistry(1, time.Minute)
			d = dispatch.NewDispatcher(breakers, log)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			url := srv.URL
			srv.Close()

			b := newBackend(url)

			_, err := d.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), b)
			Expect(err).To(MatchError(dispatch.ErrBackendUnreachable))
			Expect(breakers.Stats()[b.Endpoint()]).To(Equal(circuitbreaker.StateOpen))
		})

		It("should fail fast without touching the backend when the breaker is open", func() {
			var hits atomic.Int32

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			b := newBackend(srv.URL)

			breakers = circuitbreaker.NewRegistry(1, time.Minute)
			d = dispatch.NewDispatcher(breakers, log)
			breakers.Breaker(b.Endpoint()).RecordFailure()
			Expect(breakers.Stats()[b.Endpoint()]).To(Equal(circuitbreaker.StateOpen))

			rec := httptest.NewRecorder()
			status, err := d.Dispatch(rec, httptest.NewRequest(http.MethodGet, "/", nil), b)
			Expect(err).To(MatchError(dispatch.ErrBackendUnreachable))
			Expect(status).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring("backend unreachable"))
			Expect(hits.Load()).To(BeZero())
			Expect(b.OpenConnections()).To(BeZero())
		})

		It("should let a probe through after the reset timeout and close on success", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			b := newBackend(srv.URL)

			breakers = circuitbreaker.NewRegistry(1, 50*time.Millisecond)
			d = dispatch.NewDispatcher(breakers, log)
			breakers.Breaker(b.Endpoint()).RecordFailure()

			time.Sleep(60 * time.Millisecond)

			status, err := d.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), b)
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusOK))
			Expect(breakers.Stats()[b.Endpoint()]).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("NewDispatcher", func() {
		It("should fall back to a default breaker registry", func() {
			d := dispatch.NewDispatcher(nil, log)

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			status, err := d.Dispatch(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), newBackend(srv.URL))
			Expect(err).NotTo(HaveOccurred())
			Expect(status).To(Equal(http.StatusOK))
		})
	})
})
