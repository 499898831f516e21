package model

import (
	"fmt"
	"time"
)

// Category is the top level of the taxonomy.
type Category struct {
	CreatedAt time.Time
	Tenant    string
	Name      string
	ID        int64
}

// Subject belongs to a category.
type Subject struct {
	Name       string
	ID         int64
	CategoryID int64
}

// Detail belongs to a subject.
type Detail struct {
	Name      string
	ID        int64
	SubjectID int64
}

// Triple identifies a target classification. DetailID is nil when the
// classification stops at the subject level.
type Triple struct {
	DetailID   *int64 `json:"detail_id,omitempty"`
	CategoryID int64  `json:"category_id"`
	SubjectID  int64  `json:"subject_id"`
}

// Key returns a stable map key for the triple.
func (t Triple) Key() string {
	if t.DetailID == nil {
		return fmt.Sprintf("%d:%d:-", t.CategoryID, t.SubjectID)
	}
	return fmt.Sprintf("%d:%d:%d", t.CategoryID, t.SubjectID, *t.DetailID)
}

// Equal reports whether both triples point to the same target.
func (t Triple) Equal(o Triple) bool {
	return t.Key() == o.Key()
}

// IsZero reports whether the triple is unset.
func (t Triple) IsZero() bool {
	return t.CategoryID == 0 && t.SubjectID == 0 && t.DetailID == nil
}

// ResolvedTriple is a triple with names read from the store.
type ResolvedTriple struct {
	DetailName   *string `json:"detail_name,omitempty"`
	CategoryName string  `json:"category_name"`
	SubjectName  string  `json:"subject_name"`
	Triple
}

// Label renders the triple for humans.
func (r ResolvedTriple) Label() string {
	if r.DetailName == nil {
		return fmt.Sprintf("%s > %s", r.CategoryName, r.SubjectName)
	}
	return fmt.Sprintf("%s > %s > %s", r.CategoryName, r.SubjectName, *r.DetailName)
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}
