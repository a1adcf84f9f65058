package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When applying them to a manager", func() {
			m := &Manager{customLabels: map[string]string{}}
			WithNamespace("ns")(m)
			WithSubsystem("sub")(m)
			WithMetricPrefix("x_")(m)
			WithHistogramBuckets([]float64{0.1, 0.5, 1.0})(m)
			WithTrainingBuckets([]float64{1, 60})(m)
			WithConstLabels(map[string]string{"env": "test"})(m)

			Convey("Then every field should be set", func() {
				So(m.namespace, ShouldEqual, "ns")
				So(m.subsystem, ShouldEqual, "sub")
				So(m.metricPrefix, ShouldEqual, "x_")
				So(m.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(m.trainingBuckets, ShouldResemble, []float64{1, 60})
				So(m.customLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When passing zero values", func() {
			m := &Manager{namespace: "keep", trainingBuckets: []float64{5}}
			WithNamespace("")(m)
			WithTrainingBuckets(nil)(m)
			WithHistogramBuckets(nil)(m)

			Convey("Then defaults should be kept", func() {
				So(m.namespace, ShouldEqual, "keep")
				So(m.trainingBuckets, ShouldResemble, []float64{5})
				So(m.histogramBuckets, ShouldBeNil)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should register the service metrics", func() {
				So(manager, ShouldNotBeNil)
				manager.predictionsTotal.WithLabelValues("short_term", "open").Inc()
				So(testutil.ToFloat64(manager.predictionsTotal.WithLabelValues("short_term", "open")), ShouldEqual, 1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithMetricPrefix("x_"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names should carry the namespace and prefix", func() {
				manager.artifactSaves.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_ns_test_sub_x_artifact_saves_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording prediction metrics", func() {
			before := testutil.ToFloat64(globalManager.predictionsTotal.WithLabelValues("long_term", "closed"))
			RecordPrediction("long_term", "closed")

			Convey("Then the counter should advance", func() {
				So(testutil.ToFloat64(globalManager.predictionsTotal.WithLabelValues("long_term", "closed")), ShouldEqual, before+1)
			})

			Convey("And the other prediction recorders should not panic", func() {
				So(func() {
					RecordPredictionError("model_not_trained")
					RecordPredictionLatency(3.5)
					RecordFeatureBuildLatency("social", 0.7)
					RecordSinkError("redis")
				}, ShouldNotPanic)
			})
		})

		Convey("When recording training metrics", func() {
			UpdateTrainingSamples(1234)
			UpdateTrainingAccuracy("short_term", 0.81)

			Convey("Then gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.trainingSamples), ShouldEqual, 1234)
				So(testutil.ToFloat64(globalManager.trainingAccuracy.WithLabelValues("short_term")), ShouldEqual, 0.81)
			})

			Convey("And counters should not panic", func() {
				So(func() {
					RecordTrainingRun("completed")
					RecordTrainingSkippedCheckpoints(3)
					RecordTrainingDroppedLabels("no_successor", 2)
					RecordTrainingDuration(42 * time.Second)
				}, ShouldNotPanic)
			})
		})

		Convey("When the serving model changes", func() {
			UpdateModelLoaded("20250101_000000")
			UpdateModelLoaded("20250102_000000")

			Convey("Then only the newest version should be marked", func() {
				So(testutil.CollectAndCount(globalManager.modelLoaded), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.modelLoaded.WithLabelValues("20250102_000000")), ShouldEqual, 1)
			})

			Convey("And an empty version should clear the gauge", func() {
				UpdateModelLoaded("")
				So(testutil.CollectAndCount(globalManager.modelLoaded), ShouldEqual, 0)
			})
		})

		Convey("When recording operational metrics", func() {
			So(func() {
				RecordArtifactSave()
				RecordArtifactLoad("ok")
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 5.0)
				UpdateRepositoryRecordsTotal(10)
				RecordRepositoryUpdateLatency(0.2)
				RecordRepositoryQueryLatency(0.4)
				UpdateQueueSize(1)
				UpdateQueueCapacity(8)
				UpdateQueueUtilization(0.125)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(12)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(0)
				RecordWorkerProcessingLatency(100)
				RecordWorkerError()
				RecordErrorByComponent("training", "insufficient_data")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
