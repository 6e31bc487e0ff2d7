// Package streamer serves video files over HTTP with byte-range support.
//
// Small ranges, the kind browsers issue while scrubbing, are held in a
// process-local cache with a sliding TTL so a burst of seeks over the
// same region hits disk once. Large ranges and full-file requests stream
// directly from disk through a timeout-protected writer.
package streamer
