package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Fives API build information.",
		},
		[]string{"version", "environment"},
	)
)

// InitBuildInfo registers build_info once and sets it to 1 for the labels.
func InitBuildInfo(version, environment string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, environment).Set(1)
}
