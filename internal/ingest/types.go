// Package ingest drives a bundle through its ingestion status machine:
// pending -> chunked -> completed, coordinating the chunker, embedding
// service, and sparse/dense backends.
package ingest

// Bundle is the input to Ingest: a logical document and its pre-split
// text blocks, scoped to one index.
type Bundle struct {
	ID     string
	Index  string
	Source string
	Name   string
	Blocks []string
}
