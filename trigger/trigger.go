// Package trigger implements strict validation of external trigger
// messages: an orchestrator maps a frame to a destination tag (e.g. a ball
// id) via a small JSON message, `{frame_id, destination_tag}`. Unknown
// fields, missing required fields, and trailing data are all rejected up
// front rather than tolerated, using encoding/json's DisallowUnknownFields
// plus explicit required-field checks.
package trigger

import (
	"encoding/json"
	"fmt"
	"io"
)

// Request is a validated trigger message.
type Request struct {
	FrameID        string `json:"frame_id"`
	DestinationTag string `json:"destination_tag"`
}

// Decode parses exactly one JSON object from r into a Request, rejecting
// unknown fields, missing required fields, and trailing data.
func Decode(r io.Reader) (Request, error) {
	var req Request
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decoding trigger message: %w", err)
	}
	if req.FrameID == "" {
		return Request{}, fmt.Errorf("trigger message missing frame_id")
	}
	if req.DestinationTag == "" {
		return Request{}, fmt.Errorf("trigger message missing destination_tag")
	}
	if dec.More() {
		return Request{}, fmt.Errorf("trigger message has trailing data")
	}
	return req, nil
}

// Resolver maps destination tags to the path suffix an orchestrator has
// assigned them, so a Scanner can route a triggered frame's destination
// independently of its source name.
type Resolver struct {
	tags map[string]string
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{tags: make(map[string]string)}
}

// Register applies req, binding its destination tag's path suffix for
// future lookups. Re-registering a tag overwrites its previous suffix.
func (r *Resolver) Register(req Request, pathSuffix string) {
	r.tags[req.DestinationTag] = pathSuffix
}

// Resolve returns the path suffix bound to tag, if any.
func (r *Resolver) Resolve(tag string) (string, bool) {
	suffix, ok := r.tags[tag]
	return suffix, ok
}
