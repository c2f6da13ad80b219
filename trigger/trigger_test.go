package trigger

import (
	"strings"
	"testing"
)

func TestDecodeValid(t *testing.T) {
	req, err := Decode(strings.NewReader(`{"frame_id":"f1","destination_tag":"ball-07"}`))
	if err != nil {
		t.Fatal(err)
	}
	if req.FrameID != "f1" || req.DestinationTag != "ball-07" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"frame_id":"f1","destination_tag":"ball-07","extra":true}`))
	if err == nil {
		t.Fatal("expected an error for unknown field")
	}
}

func TestDecodeRejectsMissingField(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"frame_id":"f1"}`))
	if err == nil {
		t.Fatal("expected an error for missing destination_tag")
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"frame_id":"f1","destination_tag":"b1"}{"frame_id":"f2","destination_tag":"b2"}`))
	if err == nil {
		t.Fatal("expected an error for trailing data")
	}
}

func TestResolverRoundTrip(t *testing.T) {
	r := NewResolver()
	req := Request{FrameID: "f1", DestinationTag: "ball-07"}
	r.Register(req, "balls/ball-07")
	suffix, ok := r.Resolve("ball-07")
	if !ok || suffix != "balls/ball-07" {
		t.Fatalf("unexpected resolve result: %q, %v", suffix, ok)
	}
	if _, ok := r.Resolve("unknown"); ok {
		t.Fatal("expected unknown tag to miss")
	}
}
