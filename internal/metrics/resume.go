package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "career_resume"

var (
	resumesGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resume",
			Name:      "generated_total",
			Help:      "简历生成次数，按结果区分。",
		},
		[]string{"outcome"},
	)

	resumeItemsLinked = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "resume",
			Name:      "linked_items",
			Help:      "每份生成的简历关联的条目数量。",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"kind"},
	)
)

// ObserveResumeGenerated 记录一次生成请求的结果；成功时同时记录关联的条目数量。
func ObserveResumeGenerated(err error, achievements, skills int) {
	if err != nil {
		resumesGeneratedTotal.WithLabelValues("error").Inc()
		return
	}
	resumesGeneratedTotal.WithLabelValues("success").Inc()
	resumeItemsLinked.WithLabelValues("achievement").Observe(float64(achievements))
	resumeItemsLinked.WithLabelValues("skill").Observe(float64(skills))
}
