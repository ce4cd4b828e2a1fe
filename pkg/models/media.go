package models

import (
	"fmt"
	"time"
)

// MediaKind is the category of an archived media item.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// MediaKinds lists every supported kind in a stable order.
var MediaKinds = []MediaKind{MediaKindImage, MediaKindVideo, MediaKindAudio}

// ParseMediaKind validates a raw kind string.
func ParseMediaKind(s string) (MediaKind, error) {
	switch k := MediaKind(s); k {
	case MediaKindImage, MediaKindVideo, MediaKindAudio:
		return k, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// AnalysisKind returns the kind of analysis produced for media of this kind.
func (k MediaKind) AnalysisKind() AnalysisKind {
	if k == MediaKindAudio {
		return AnalysisKindTranscription
	}
	return AnalysisKindDescription
}

// MediaDescriptor is the optional metadata captured at ingestion time.
// Field names follow the Matrix event "info" block; Duration is milliseconds.
type MediaDescriptor struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"w,omitempty"`
	Height   int    `json:"h,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// DurationValue converts the millisecond duration. Zero means unknown.
func (d *MediaDescriptor) DurationValue() time.Duration {
	if d == nil || d.Duration <= 0 {
		return 0
	}
	return time.Duration(d.Duration) * time.Millisecond
}
