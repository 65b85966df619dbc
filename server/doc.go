// Package server exposes document upload, grounded query and free chat over
// HTTP.
//
// Endpoints:
//
//	POST /api/upload  multipart document -> {"session_id": ...}
//	POST /api/query   question against a session, JSON or streamed text
//	POST /api/chat    free conversation, streamed text
//	GET  /api/health  liveness probe
//
// Requests may carry their own api_key and model; the server builds and
// caches one service per credential pair, all sharing a session registry.
package server
