// Package query answers questions about uploaded documents.
//
// The Engine looks up the document's session, embeds the question, retrieves
// the top-k most similar segments by cosine similarity, and hands a grounding
// prompt built from those segments to the chat model. QueryMonitor exposes
// each intermediate step for tooling and tests.
package query
