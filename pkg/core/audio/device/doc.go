// Package device binds the live session to the local sound card: a malgo
// capture device as the microphone and an oto player pulling from an
// audio.Timeline as the speaker.
package device
