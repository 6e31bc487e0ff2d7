package database

import (
	"strings"
	"time"

	"clipflow/internal/mediatypes"
)

// Status represents the processing lifecycle of a video record.
type Status string

const (
	// StatusUploaded is the initial state after a successful upload.
	StatusUploaded Status = "uploaded"
	// StatusProcessing means the pipeline is actively working the record.
	StatusProcessing Status = "processing"
	// StatusCompleted is the terminal state for safe content.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal state for flagged content. Note that
	// "failed" means the classifier flagged the asset, not that an error
	// occurred; downstream display logic relies on this meaning.
	StatusFailed Status = "failed"
)

var statusSet = map[Status]struct{}{
	StatusUploaded:   {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// legalTransitions enumerates the forward-only status graph.
var legalTransitions = map[Status][]Status{
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further pipeline writes may occur.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Sensitivity is the content classification result for a video.
type Sensitivity string

const (
	// SensitivityUnknown applies until the pipeline has classified the asset.
	SensitivityUnknown Sensitivity = "unknown"
	// SensitivitySafe marks content cleared by the classifier.
	SensitivitySafe Sensitivity = "safe"
	// SensitivityFlagged marks content the classifier rejected.
	SensitivityFlagged Sensitivity = "flagged"
)

// ParseSensitivity converts a string into a known Sensitivity.
func ParseSensitivity(value string) (Sensitivity, bool) {
	normalized := Sensitivity(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case SensitivityUnknown, SensitivitySafe, SensitivityFlagged:
		return normalized, true
	}
	return "", false
}

// Video is one uploaded asset and its processing state.
type Video struct {
	ID               string `json:"id"`
	Owner            string `json:"owner"`
	StoredFilename   string `json:"storedFilename"`
	OriginalFilename string `json:"originalFilename"`
	SizeBytes        int64  `json:"sizeBytes"`
	SourcePath       string `json:"-"`
	MimeType         string `json:"mimeType"`

	Status      Status      `json:"status"`
	Sensitivity Sensitivity `json:"sensitivity"`
	Progress    int         `json:"progress"`

	// Variants maps quality labels to produced file paths. A label is
	// absent until its rendition exists on disk.
	Variants map[mediatypes.Quality]string `json:"variants"`

	ThumbPath string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VariantPath returns the on-disk path for a quality, falling back to the
// original source when the rendition has not been produced.
func (v *Video) VariantPath(q mediatypes.Quality) string {
	if q == mediatypes.QualityOriginal {
		return v.SourcePath
	}
	if path, ok := v.Variants[q]; ok && path != "" {
		return path
	}
	return v.SourcePath
}

// Role is a user's permission level.
type Role string

const (
	// RoleViewer may only watch content shared with them.
	RoleViewer Role = "viewer"
	// RoleEditor may upload and manage their own content.
	RoleEditor Role = "editor"
	// RoleAdmin may manage any content.
	RoleAdmin Role = "admin"
)

// ParseRole converts a string into a known Role.
func ParseRole(value string) (Role, bool) {
	normalized := Role(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case RoleViewer, RoleEditor, RoleAdmin:
		return normalized, true
	}
	return "", false
}

// User is an account able to authenticate against the service.
type User struct {
	ID           string    `json:"id"`
	Fullname     string    `json:"fullname"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListOptions filters and paginates video listings.
type ListOptions struct {
	Owner       string
	Status      Status
	Sensitivity Sensitivity
	Search      string
	Page        int
	Limit       int
}

// Normalize clamps paging values to the supported window.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// ListResult is one page of a video listing.
type ListResult struct {
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
	Total  int      `json:"total"`
	Videos []*Video `json:"videos"`
}
