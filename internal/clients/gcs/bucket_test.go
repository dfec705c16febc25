package gcs

import "testing"

func TestPublicURL(t *testing.T) {
	b := &ReportBucket{bucket: "my-bucket", prefix: "reports"}
	if got := b.PublicURL(b.objectKey("s/t.md")); got != "https://storage.googleapis.com/my-bucket/reports/s/t.md" {
		t.Fatalf("default public url: got=%s", got)
	}
	b.publicURLPrefix = "https://cdn.example.com"
	if got := b.PublicURL(b.objectKey("/s/t.md")); got != "https://cdn.example.com/reports/s/t.md" {
		t.Fatalf("cdn public url: got=%s", got)
	}
}

func TestClientOptionsFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if got := ClientOptionsFromEnv(); len(got) != 0 {
		t.Fatalf("no creds: want 0 options got=%d", len(got))
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/tmp/sa.json")
	if got := ClientOptionsFromEnv(); len(got) != 1 {
		t.Fatalf("file creds: want 1 option got=%d", len(got))
	}
}
