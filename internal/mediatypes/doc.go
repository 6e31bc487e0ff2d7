// Package mediatypes defines the shared media classification vocabulary:
// playback quality labels, accepted upload MIME types, and the
// extension-to-MIME mapping used when serving stored files.
package mediatypes
