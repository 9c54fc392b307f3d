// Package server exposes the instance service over HTTP.
//
// The surface is a thin controller: handlers decode the request, call
// one service method, and encode the result. All domain rules live in
// the instance service; the only logic here is the mapping from api
// error kinds to HTTP status codes, which internal/client inverts on
// the other side of the wire.
package server
