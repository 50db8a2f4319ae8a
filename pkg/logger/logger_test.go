package logger_test

import (
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/trafficd/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		Context("level handling", func() {
			It("should enable info and above at info level", func() {
				log := logger.New("info", false, "dev")

				Expect(log.Enabled(nil, slog.LevelInfo)).To(BeTrue())
				Expect(log.Enabled(nil, slog.LevelDebug)).To(BeFalse())
			})

			It("should enable debug at debug level", func() {
				log := logger.New("debug", false, "dev")

				Expect(log.Enabled(nil, slog.LevelDebug)).To(BeTrue())
			})

			It("should drop info at warn level", func() {
				log := logger.New("warn", false, "dev")

				Expect(log.Enabled(nil, slog.LevelInfo)).To(BeFalse())
				Expect(log.Enabled(nil, slog.LevelWarn)).To(BeTrue())
			})

			It("should drop warn at error level", func() {
				log := logger.New("error", false, "dev")

				Expect(log.Enabled(nil, slog.LevelWarn)).To(BeFalse())
				Expect(log.Enabled(nil, slog.LevelError)).To(BeTrue())
			})

			It("should ignore case in the level name", func() {
				log := logger.New("DEBUG", false, "dev")

				Expect(log.Enabled(nil, slog.LevelDebug)).To(BeTrue())
			})

			It("should fall back to info for an unknown level", func() {
				log := logger.New("loud", false, "dev")

				Expect(log.Enabled(nil, slog.LevelInfo)).To(BeTrue())
				Expect(log.Enabled(nil, slog.LevelDebug)).To(BeFalse())
			})
		})

		Context("handler selection", func() {
			It("should log JSON in prod", func() {
				log := logger.New("info", false, "prod")

				Expect(log.Handler()).To(BeAssignableToTypeOf(&slog.JSONHandler{}))
			})

			It("should ignore case in the environment name", func() {
				log := logger.New("info", false, "PROD")

				Expect(log.Handler()).To(BeAssignableToTypeOf(&slog.JSONHandler{}))
			})

			It("should log text in dev", func() {
				log := logger.New("info", false, "dev")

				Expect(log.Handler()).To(BeAssignableToTypeOf(&slog.TextHandler{}))
			})

			It("should log text in staging", func() {
				log := logger.New("info", false, "staging")

				Expect(log.Handler()).To(BeAssignableToTypeOf(&slog.TextHandler{}))
			})
		})

		It("should support the addSource option", func() {
			log := logger.New("info", true, "dev")
			Expect(log).NotTo(BeNil())
		})
	})
})
