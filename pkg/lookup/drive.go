package lookup

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	drivePattern = regexp.MustCompile(`^https://drive\.google\.com/(file/d/|open\?id=)`)
	driveFileID  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveOpenID  = regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`)
)

// ValidateDriveLink reports whether the URL is a shareable Google Drive
// link in one of the two supported forms.
func ValidateDriveLink(link string) bool {
	return drivePattern.MatchString(strings.TrimSpace(link))
}

// DriveFileID extracts the file ID from a Drive link.
func DriveFileID(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if m := driveFileID.FindStringSubmatch(link); m != nil {
		return m[1], true
	}
	if m := driveOpenID.FindStringSubmatch(link); m != nil {
		return m[1], true
	}
	return "", false
}

// DriveDownloadURL builds the direct-download URL for a Drive file ID.
func DriveDownloadURL(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", fileID)
}
