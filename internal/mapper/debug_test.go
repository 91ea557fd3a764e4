package mapper

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogWriters(t *testing.T) {
	var ops, diag bytes.Buffer
	SetLogWriters(&ops, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	opsf("encode failed: %s", "boom")
	diagf("dropped scan %d", 7)
	tracef("never written")

	if got := ops.String(); !strings.Contains(got, "[mapper] ") || !strings.HasSuffix(got, "encode failed: boom\n") {
		t.Errorf("ops = %q", got)
	}
	if got := diag.String(); !strings.HasSuffix(got, "dropped scan 7\n") {
		t.Errorf("diag = %q", got)
	}

	SetLogWriters(nil, nil, nil)
	opsf("silenced")
	if strings.Contains(ops.String(), "silenced") {
		t.Error("nil writer should silence the stream")
	}
}
