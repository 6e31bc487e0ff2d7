// Package pipeline orchestrates the asynchronous work a video goes
// through after upload: transcoding into the fixed rendition ladder,
// poster extraction, content classification, and the final status
// transition, with progress persisted and pushed to the owner along the
// way.
package pipeline
