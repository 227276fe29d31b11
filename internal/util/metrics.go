package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "Total number of products registered",
	})

	ProductAssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_assignments_total",
		Help: "Total number of delivery person assignments to products",
	})

	ProductStatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_status_updates_total",
		Help: "Total number of product status updates",
	}, []string{"status"})

	ProductUpdatesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_updates_rejected_total",
		Help: "Total number of rejected product mutations",
	}, []string{"reason"})

	DeliveriesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_created_total",
		Help: "Total number of deliveries opened",
	})

	DeliveryTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_status_transitions_total",
		Help: "Total number of delivery status transitions",
	}, []string{"status"})

	DeliveriesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_deleted_total",
		Help: "Total number of deliveries deleted",
	})

	UsersDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "users_deleted_total",
		Help: "Total number of users deleted",
	}, []string{"role"})

	CascadeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "user_delete_cascade_latency_seconds",
		Help:    "Latency of user deletion cascades",
		Buckets: prometheus.DefBuckets,
	})

	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Total number of login attempts",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
