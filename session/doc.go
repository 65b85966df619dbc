// Package session tracks uploaded documents across requests.
//
// Each successful document build is registered as a Session holding the
// document's vector index, keyed by an opaque token the client presents on
// later queries. Sessions live only in memory and disappear on restart; an
// optional TTL evicts idle sessions earlier.
package session
