// Package workers calculates appropriate worker pool sizes based on
// available CPU resources. Encode work is CPU-bound, so the pipeline
// manager sizes its concurrency cap with ForCPU.
package workers
