package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/fixedpoint"
	"xdao.co/ledgercore/storage/localfs"
)

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "blob.txt")
	if err := os.WriteFile(src, []byte("evidence"), 0o600); err != nil {
		t.Fatal(err)
	}
	backend := "file:" + filepath.Join(dir, "archive")

	var out, errOut bytes.Buffer
	if code := run([]string{"put", "--backend", backend, src}, &out, &errOut); code != 0 {
		t.Fatalf("put: code=%d stderr=%s", code, errOut.String())
	}
	id := strings.TrimSpace(out.String())

	out.Reset()
	if code := run([]string{"get", "--backend", backend, "--cid", id}, &out, &errOut); code != 0 {
		t.Fatalf("get: code=%d stderr=%s", code, errOut.String())
	}
	if out.String() != "evidence" {
		t.Fatalf("get = %q", out.String())
	}
}

func TestEntriesListsManifest(t *testing.T) {
	dir := t.TempDir()
	cas, err := localfs.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	chain := audit.NewChain(audit.WithSink(cas))
	if _, err := chain.Append("add", map[string]any{"a": fixedpoint.One(), "b": fixedpoint.One()}, fixedpoint.FromInteger(2), nil, nil, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := chain.Append("sqrt", map[string]any{"x": fixedpoint.FromInteger(4)}, fixedpoint.FromInteger(2), nil, nil, 2); err != nil {
		t.Fatal(err)
	}
	manifest, err := chain.Checkpoint()
	if err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	if code := run([]string{"entries", "--backend", "file:" + dir, "--manifest", manifest.String()}, &out, &errOut); code != 0 {
		t.Fatalf("entries: code=%d stderr=%s", code, errOut.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[0] != "chain_hash "+chain.ChainHash() {
		t.Fatalf("entries output = %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "0\t") || !strings.Contains(lines[1], "\tadd\t") || !strings.Contains(lines[2], "\tsqrt\t") {
		t.Fatalf("entries output = %q", out.String())
	}
}

func TestUsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	for _, args := range [][]string{
		nil,
		{"resolve"},
		{"get", "--backend", "mem:"},
		{"get", "--backend", "mem:", "--cid", "not-a-cid"},
		{"entries", "--backend", "mem:"},
	} {
		if code := run(args, &out, &errOut); code != 2 {
			t.Fatalf("%v: code=%d, want 2", args, code)
		}
	}
	if code := run([]string{"put", "--backend", "nope:", "x"}, &out, &errOut); code != 1 {
		t.Fatalf("unknown backend: code=%d, want 1", code)
	}
}
