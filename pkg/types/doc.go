// Package types defines the identifiers, table metadata model, collaborator
// interfaces (Transport, MetadataStore), configuration and standard errors
// shared by the icecat catalog client and its backends.
//
// Nothing in this package performs I/O. The catalog protocol itself lives in
// pkg/catalog; concrete transports and stores live under internal/.
package types
