package naming

import "testing"

func TestJobFilename(t *testing.T) {
	got := JobFilename("a1b2c3d4-0000-4000-8000-000000000000", "main body v2!", 3)
	if got != "PRJ-a1b2c3-MainBodyV2-B3.3mf" {
		t.Fatalf("unexpected filename %q", got)
	}
	if got := JobFilename("a1b2c3d4", "!!!", 1); got != "PRJ-a1b2c3-Item-B1.3mf" {
		t.Fatalf("expected Item fallback, got %q", got)
	}
}

func TestParseRoundTrip(t *testing.T) {
	p, ok := Parse("PRJ-A1B2C3-MainBody-B12.3MF")
	if !ok {
		t.Fatalf("expected match")
	}
	if p.ProjectShortID != "a1b2c3" || p.ItemSlug != "MainBody" || p.BatchNumber != 12 {
		t.Fatalf("unexpected parse %+v", p)
	}
	for _, bad := range []string{"benchy.3mf", "PRJ-zzzzzz-Part-B1.3mf", "PRJ-a1b2c3-Part-B.3mf", ""} {
		if _, ok := Parse(bad); ok {
			t.Fatalf("expected %q not to match", bad)
		}
	}
}
