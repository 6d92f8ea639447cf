// Package wav converts PCM buffers to and from canonical 16-bit RIFF/WAVE
// bytes.
//
// Encode always emits the 44-byte canonical header (RIFF, fmt, data) with no
// extension chunks, so the declared lengths match the payload exactly.
// Decode accepts any PCM WAV the remote service returns, including files with
// extra chunks, and normalizes samples to [-1, 1].
package wav
