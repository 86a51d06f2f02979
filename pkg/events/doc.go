// Package events exposes a producer's lifecycle as a channel. Stream
// implements the producer's Listener interface and forwards each
// callback as an Event on one buffered channel, dropping rather than
// blocking when the reader falls behind.
package events
