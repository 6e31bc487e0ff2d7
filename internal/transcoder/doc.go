// Package transcoder produces fixed-profile resolution renditions of
// uploaded videos using FFmpeg.
//
// All three profile jobs for one input run concurrently; the first
// failure cancels the remaining jobs and their partial output is
// removed, while renditions that already finished are kept. Progress is
// parsed from ffmpeg's -progress output and scaled against the
// ffprobe-reported input duration.
//
// FFmpeg and ffprobe must be installed and available in the system PATH.
package transcoder
