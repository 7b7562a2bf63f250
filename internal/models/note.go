package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Note is a user-owned record with optional title and content.
type Note struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"-"`
	Title     *string   `json:"title"`
	Content   *string   `json:"content"`
	Images    []string  `json:"images"` // opaque encoded blobs, order preserved
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// JSON string fields for DB storage
	ImagesJSON string `json:"-"`
	LabelsJSON string `json:"-"`
}

// NoteInput carries the optional fields of a create or update request.
// A nil field means "not provided".
type NoteInput struct {
	Title   *string  `json:"title"`
	Content *string  `json:"content"`
	Images  []string `json:"images"`
	Labels  []string `json:"labels"`
}

// PrepareForSave marshals the slice fields into their JSON columns.
func (n *Note) PrepareForSave() error {
	images, err := EncodeStrings(n.Images)
	if err != nil {
		return err
	}
	labels, err := EncodeStrings(n.Labels)
	if err != nil {
		return err
	}
	n.ImagesJSON, n.LabelsJSON = images, labels
	return nil
}

// PrepareForAPI unmarshals the JSON columns into the slice fields. Both
// slices are non-nil afterwards so they serialize as [] rather than null.
func (n *Note) PrepareForAPI() error {
	n.Images, n.Labels = []string{}, []string{}
	if n.ImagesJSON != "" {
		if err := json.Unmarshal([]byte(n.ImagesJSON), &n.Images); err != nil {
			return fmt.Errorf("decode images of note %d: %w", n.ID, err)
		}
	}
	if n.LabelsJSON != "" {
		if err := json.Unmarshal([]byte(n.LabelsJSON), &n.Labels); err != nil {
			return fmt.Errorf("decode labels of note %d: %w", n.ID, err)
		}
	}
	if n.Images == nil {
		n.Images = []string{}
	}
	if n.Labels == nil {
		n.Labels = []string{}
	}
	return nil
}

// EncodeStrings returns the JSON array for s, "[]" for a nil slice.
func EncodeStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NormalizeLabels drops duplicate labels, keeping the first occurrence.
func NormalizeLabels(labels []string) []string {
	if labels == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
