package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EncryptOperations records field encryptions by result (success|failure).
	EncryptOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldvault_encrypt_operations_total",
			Help: "Total number of field encryption operations",
		},
		[]string{"result"},
	)

	// DecryptOperations records field decryptions by wire format and result.
	DecryptOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldvault_decrypt_operations_total",
			Help: "Total number of field decryption operations",
		},
		[]string{"format", "result"},
	)

	// TryAllAttempts counts keys tried during fallback decryption.
	TryAllAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldvault_try_all_attempts_total",
			Help: "Total number of trial decryption attempts across all keys",
		},
	)

	// KeyRotations counts completed key rotations.
	KeyRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldvault_key_rotations_total",
			Help: "Total number of completed key rotations",
		},
	)

	// LoadedKeys tracks the number of keys currently loadable for decryption.
	LoadedKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldvault_loaded_keys",
			Help: "Number of keys in the in-memory decryption set",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldvault_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
