// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RecordRef is a weak reference to a record: it names the record without
// holding it, so an annotation never keeps a record alive or aliases it.
type RecordRef struct {
	ID     string `json:"id" yaml:"id"`
	Source Source `json:"source" yaml:"source"`
}

// DuplicateAnnotation flags a record that probably duplicates a record from
// the other source. Annotations are recomputed whenever the reference list
// changes and are never written into the record.
type DuplicateAnnotation struct {
	// RecordID is the annotated record.
	RecordID string `json:"record_id" yaml:"record_id"`

	IsDuplicate bool   `json:"is_duplicate" yaml:"is_duplicate"`
	Reason      string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// MatchedRecord is the best-scoring reference record, kept even when
	// the verdict is not a duplicate. Nil when nothing was compared.
	MatchedRecord *RecordRef `json:"matched_record,omitempty" yaml:"matched_record,omitempty"`

	// SimilarityScore is the overall score against MatchedRecord, in [0,1].
	SimilarityScore float64 `json:"similarity_score" yaml:"similarity_score"`
}
