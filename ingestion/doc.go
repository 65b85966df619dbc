// Package ingestion provides the document build pipeline.
//
// The Splitter type cuts raw text into overlapping fixed-size segments; the
// Pipeline type orchestrates the full build: text extraction, splitting, and
// batched embedding over a worker pool. A build either fully succeeds or
// fails with no partial result.
package ingestion
