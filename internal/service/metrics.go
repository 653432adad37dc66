package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	versionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "versioning_versions_created_total",
			Help: "Total number of content versions created, by change type",
		},
		[]string{"change_type"},
	)

	versionsRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "versioning_versions_restored_total",
			Help: "Total number of restore operations",
		},
	)

	versionsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "versioning_versions_published_total",
			Help: "Total number of versions promoted to published",
		},
	)
)
