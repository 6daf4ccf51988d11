// Package audio holds the PCM helpers used on both sides of a live voice
// session: base64 transcoding, 16-bit PCM and float conversion, level
// metering, WAV wrapping and a mixing timeline that backs a speaker.
//
// All PCM in this package is 16-bit signed little-endian mono unless a
// Format says otherwise.
package audio
