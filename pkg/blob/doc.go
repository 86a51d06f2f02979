/*
Package blob defines Burrow's artifact model and the capabilities that
move artifacts between a producer and its consumers.

A blob is an opaque byte stream: a fixed header (kind, codec, from- and
to-version) followed by a body the state engines encode and decode. Blobs
are written once, front to back; nothing in Burrow seeks inside one.

The package provides:

  - the Stager, Publisher, Retriever, and Announcer capability
    interfaces the producer is configured with
  - FilesystemStager, staging artifacts as atomically renamed files
  - BoltStore, a bbolt-backed durable store implementing Publisher,
    Retriever, and Announcer for single-host deployments
  - body compression codecs (identity, snappy) recorded in the header
*/
package blob
