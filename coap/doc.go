// Package coap is minimal CoAP (RFC 7252) message codec for LightDB client.
//
// Only what the client needs on the wire:
// - fixed 4 byte header, token up to 8 bytes
// - options with delta/length nibbles, including extended forms
// - payload marker and payload
//
// Not implemented: block-wise transfer, observe, retransmission.
// Messages are plain values, transport is somebody else's problem.
package coap
