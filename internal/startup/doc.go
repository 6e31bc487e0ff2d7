// Package startup handles application initialization: environment-driven
// configuration with validation, directory setup, dependency checks
// (ffmpeg/ffprobe), and the structured startup/shutdown log sequence.
package startup
