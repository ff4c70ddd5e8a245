package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	convey.Convey("Given metrics options", t, func() {
		convey.Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			histogramBucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			metricsEnabledOpt := WithMetricsEnabled(true)
			refreshIntervalOpt := WithRefreshInterval(5 * time.Second)

			convey.Convey("Then they should be valid functions", func() {
				convey.So(namespaceOpt, convey.ShouldNotBeNil)
				convey.So(subsystemOpt, convey.ShouldNotBeNil)
				convey.So(histogramBucketsOpt, convey.ShouldNotBeNil)
				convey.So(metricsEnabledOpt, convey.ShouldNotBeNil)
				convey.So(refreshIntervalOpt, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestManagerCreation(t *testing.T) {
	convey.Convey("Given a metrics manager", t, func() {
		convey.Convey("When created with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(manager, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When created with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(true),
				WithRefreshInterval(10*time.Second),
				WithPrometheusRegistry(registry),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(manager, convey.ShouldNotBeNil)
				convey.So(manager.namespace, convey.ShouldEqual, "test-namespace")
				convey.So(manager.subsystem, convey.ShouldEqual, "test-subsystem")
				convey.So(manager.enabled, convey.ShouldBeTrue)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	convey.Convey("Given the global metrics manager", t, func() {
		convey.Convey("When prediction events are recorded", func() {
			RecordPrediction("rules_v1")
			RecordPrediction("ml_forest_abcdef12")
			RecordPredictionLatency(12.5)
			RecordEngineFallback()
			RecordBatchSize(40)
			RecordPredictionError()
			RecordExplanation("formula")
			RecordExplanation("learned")

			convey.Convey("Then recording should not panic and state should be readable", func() {
				convey.So(globalManager, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When training and lifecycle events are recorded", func() {
			RecordTrainingRun("COMPLETED")
			RecordTrainingRun("FAILED")
			RecordTrainingDuration(3.2)
			UpdateDatasetRows(2000)
			RecordDroppedRows(7)
			RecordPromotion()
			RecordPromotionFailure()
			UpdateModelLoaded(true)
			RecordModelLoadFailure()
			RecordModelReload()

			convey.Convey("Then the gauges and counters should accept updates", func() {
				convey.So(globalManager.modelLoaded, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When queue and worker events are recorded", func() {
			UpdateQueueSize(3)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.03)
			RecordEnqueue()
			RecordDequeue()
			RecordEnqueueError()
			UpdateWorkerCount(4)
			RecordWorkerProcessingLatency(8.75)
			RecordWorkerError()

			convey.Convey("Then the queue metrics should accept updates", func() {
				convey.So(globalManager.queueSize, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestHandler(t *testing.T) {
	convey.Convey("Given the metrics HTTP handler", t, func() {
		RecordPrediction("rules_v1")
		handler := Handler()

		convey.Convey("When the metrics endpoint is scraped", func() {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			convey.Convey("Then it should expose the prediction counters", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "skillcast_prediction_predictions_total")
			})
		})
	})
}
