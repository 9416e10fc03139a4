package rpc

import "testing"

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	if c.Name() != "proto" {
		t.Fatalf("codec must register under the reserved proto subtype, got %q", c.Name())
	}

	in := &CreateContainerRequest{
		ImageName:     "nginx:latest",
		ContainerName: "web",
		NetworkName:   "team-a",
		ExposureLevel: 2,
	}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := &CreateContainerRequest{}
	if err := c.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ImageName != in.ImageName || out.ContainerName != in.ContainerName ||
		out.NetworkName != in.NetworkName || out.ExposureLevel != in.ExposureLevel {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}
