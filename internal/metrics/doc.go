// Package metrics defines the Prometheus metric vectors exported by the
// service. Metrics are registered via promauto at package load and served
// on the dedicated metrics listener.
package metrics
