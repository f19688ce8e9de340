package blobstore

import "testing"

func TestParseRef(t *testing.T) {
	r, err := ParseRef("minio:docs:2024-09-job-abc123-report.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Scheme != "minio" {
		t.Fatalf("scheme = %q", r.Scheme)
	}
	if r.Bucket != "docs" {
		t.Fatalf("bucket = %q", r.Bucket)
	}
	if r.Object != "2024-09-job-abc123-report.pdf" {
		t.Fatalf("object = %q", r.Object)
	}
	if got := r.Filename(); got != "report.pdf" {
		t.Fatalf("filename = %q", got)
	}
}

func TestParseRef_Malformed(t *testing.T) {
	if _, err := ParseRef("not-a-ref"); err == nil {
		t.Fatal("expected error for malformed reference")
	}
}

func TestRef_FilenameNoDash(t *testing.T) {
	r := Ref{Object: "plainobject.txt"}
	if got := r.Filename(); got != "plainobject.txt" {
		t.Fatalf("filename = %q", got)
	}
}
