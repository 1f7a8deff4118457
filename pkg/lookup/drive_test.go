package lookup

import "testing"

func TestValidateDriveLink(t *testing.T) {
	cases := []struct {
		link string
		want bool
	}{
		{"https://drive.google.com/file/d/1AbC_d-9/view?usp=sharing", true},
		{"https://drive.google.com/open?id=1AbC_d-9", true},
		{"https://docs.google.com/document/d/xyz", false},
		{"http://drive.google.com/file/d/abc", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidateDriveLink(tc.link); got != tc.want {
			t.Errorf("ValidateDriveLink(%q) = %v, want %v", tc.link, got, tc.want)
		}
	}
}

func TestDriveFileID(t *testing.T) {
	id, ok := DriveFileID("https://drive.google.com/file/d/1AbC_d-9/view?usp=sharing")
	if !ok || id != "1AbC_d-9" {
		t.Fatalf("file/d form: id=%q ok=%v", id, ok)
	}
	id, ok = DriveFileID("https://drive.google.com/open?id=XYZ-123_a")
	if !ok || id != "XYZ-123_a" {
		t.Fatalf("open?id form: id=%q ok=%v", id, ok)
	}
	if _, ok := DriveFileID("https://drive.google.com/"); ok {
		t.Fatalf("expected no id")
	}
}

func TestDriveDownloadURL(t *testing.T) {
	got := DriveDownloadURL("abc123")
	want := "https://drive.google.com/uc?export=download&id=abc123"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
