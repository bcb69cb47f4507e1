// Package api exposes internal/filterstore's Manager over HTTP (gorilla/mux)
// and gRPC (a hand-written ServiceDesc with a JSON wire codec, avoiding any
// protoc step). Both transports share the request/response shapes defined
// here. Request validation and rate limiting apply to the HTTP transport
// only; the gRPC service passes requests to the Manager unchecked.
package api

// CreateRequest is the payload for POST /filters.
type CreateRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Capacity    uint64   `json:"capacity,omitempty" validate:"omitempty,min=1"`
	Probability float64  `json:"probability,omitempty" validate:"omitempty,gt=0,lt=1"`
	InMemory    bool     `json:"in_memory,omitempty"`
}

// KeysRequest is the payload for the check_keys and set_keys endpoints.
// Keys are base64-free raw strings; bloomd treats filter contents as opaque
// byte strings, not structured data.
type KeysRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required"`
}

// KeysResponse reports, per key and in request order, whether the key is
// present (check_keys) or was newly added (set_keys).
type KeysResponse struct {
	Results []bool `json:"results"`
}

// StatusResponse is the generic envelope for operations that only report
// success/failure, carrying the Manager's Status in its string form.
type StatusResponse struct {
	Status string `json:"status"`
}

// ListResponse is the payload for list_all and list_cold.
type ListResponse struct {
	Names []string `json:"names"`
}

// InfoResponse answers GET /filters/{name}/info: read-only filter
// metadata surfaced over the network without taking the handle lock.
type InfoResponse struct {
	Name        string  `json:"name"`
	Capacity    uint64  `json:"capacity"`
	Probability float64 `json:"probability"`
	Count       uint64  `json:"count"`
	Proxied     bool    `json:"proxied"`
}

// errorResponse is written for malformed or invalid request bodies and for
// rate-limited requests; Manager statuses are written as StatusResponse.
type errorResponse struct {
	Error string `json:"error"`
}
