package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/thesisdesk/thesisdesk/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"ChapterID", id.NewChapterID, "chap_"},
		{"PaymentID", id.NewPaymentID, "pay_"},
		{"RevisionID", id.NewRevisionID, "rev_"},
		{"FeedbackID", id.NewFeedbackID, "fb_"},
		{"AttachmentID", id.NewAttachmentID, "file_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"ChapterID", id.NewChapterID, id.ParseChapterID},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID},
		{"RevisionID", id.NewRevisionID, id.ParseRevisionID},
		{"FeedbackID", id.NewFeedbackID, id.ParseFeedbackID},
		{"AttachmentID", id.NewAttachmentID, id.ParseAttachmentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !parsed.Equal(original) {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseChapterID(id.NewPaymentID().String()); err == nil {
		t.Error("ParseChapterID accepted a pay_ id")
	}
	if _, err := id.ParsePaymentID(id.NewChapterID().String()); err == nil {
		t.Error("ParsePaymentID accepted a chap_ id")
	}
}

func TestParseOptional(t *testing.T) {
	got, err := id.ParseOptional("", id.PrefixPayment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsNil() {
		t.Error("expected Nil for empty input")
	}

	if _, err := id.ParseOptional("garbage", id.PrefixPayment); err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if !i.Equal(id.Nil) {
		t.Error("zero-value ID should equal Nil")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type doc struct {
		Chapter id.ID `json:"chapter"`
		Payment id.ID `json:"payment"`
	}

	in := doc{Chapter: id.NewChapterID()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out doc
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Chapter.Equal(in.Chapter) {
		t.Errorf("chapter mismatch: %q != %q", out.Chapter, in.Chapter)
	}
	if !out.Payment.IsNil() {
		t.Error("expected nil payment after round-trip")
	}
}
