// Package signaling implements the WebSocket surface of the relay: the JSON
// wire protocol spoken by web clients and the per-connection session loop
// that feeds the relay core.
package signaling
