package ratings

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return base.Add(time.Duration(n) * 24 * time.Hour)
}

func TestNewRejectsOutOfRange(t *testing.T) {
	for _, score := range []float64{-0.01, 1.01, math.NaN()} {
		if _, err := New("alice", score, base); err == nil {
			t.Errorf("New(score=%v) = nil error, want rejection", score)
		}
	}
	r, err := New("", 1, base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.User != Anonymous {
		t.Errorf("User = %q, want %q", r.User, Anonymous)
	}
	if r.Score != 1 {
		t.Errorf("Score = %v, want 1 (no clamping)", r.Score)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T12:00:00Z", base},
		{"2025-03-01T14:00:00+02:00", base},
		{"2025-03-01T12:00:00", base},
		{"2025-03-01T12:00:00.000000", base},
		{"2025-03-01 12:00:00", base},
		{"2025-03-01", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "2025-13-45T00:00:00"} {
		if _, err := ParseTime(bad); err == nil {
			t.Errorf("ParseTime(%q) = nil error, want failure", bad)
		}
	}
}

func TestParseRecordMalformed(t *testing.T) {
	str := func(s string) *string { return &s }
	num := func(f float64) *float64 { return &f }

	tests := []struct {
		name string
		rec  Record
	}{
		{"missing score", Record{User: str("bob"), Timestamp: str("2025-03-01T12:00:00Z")}},
		{"missing timestamp", Record{User: str("bob"), Score: num(0.4)}},
		{"bad timestamp", Record{User: str("bob"), Score: num(0.4), Timestamp: str("soon")}},
		{"score too high", Record{User: str("bob"), Score: num(1.5), Timestamp: str("2025-03-01T12:00:00Z")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord("42", tt.rec)
			var me *MalformedRecordError
			if !errors.As(err, &me) {
				t.Fatalf("err = %v, want *MalformedRecordError", err)
			}
			if me.NodeID != "42" || me.User != "bob" {
				t.Errorf("context = (%s, %s), want (42, bob)", me.NodeID, me.User)
			}
		})
	}
}

func TestParseRecordMissingUser(t *testing.T) {
	score := 0.7
	ts := "2025-03-01T12:00:00"
	r, err := ParseRecord("7", Record{Score: &score, Timestamp: &ts})
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if r.User != Anonymous {
		t.Errorf("User = %q, want %q", r.User, Anonymous)
	}
}

func TestFromDocumentKeepsSiblings(t *testing.T) {
	var doc Document
	data := `{"nodes": {"42": [
		{"user": "alice", "score": 0.9, "timestamp": "2025-03-01T12:00:00"},
		{"user": "bob", "score": 0.1},
		{"user": "carol", "score": "high", "timestamp": "2025-03-01T12:00:00"},
		{"user": "dave", "score": 0.3, "timestamp": "2025-03-02T12:00:00"}
	]}}`
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	h, warnings := FromDocument(doc)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %d, want 2: %v", len(warnings), warnings)
	}
	for _, w := range warnings {
		if !w.IsMalformed() || w.NodeID != "42" {
			t.Errorf("unexpected warning %v", w)
		}
	}
	got := h["42"]
	if len(got) != 2 || got[0].User != "alice" || got[1].User != "dave" {
		t.Errorf("kept = %+v, want alice and dave", got)
	}
}

func TestDedupKeepsLatestPerUser(t *testing.T) {
	h := History{
		"42": {
			{User: "alice", Score: 0.8, Timestamp: day(0)},
			{User: "bob", Score: 0.2, Timestamp: day(1)},
			{User: "alice", Score: 0.3, Timestamp: day(2)},
			{User: "alice", Score: 0.5, Timestamp: day(1)},
		},
		"7": {
			{User: "carol", Score: 1, Timestamp: day(0)},
		},
	}

	got, dropped := Dedup(h)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	want := []Rating{
		{User: "bob", Score: 0.2, Timestamp: day(1)},
		{User: "alice", Score: 0.3, Timestamp: day(2)},
	}
	if !reflect.DeepEqual(got["42"], want) {
		t.Errorf("node 42 = %+v, want %+v", got["42"], want)
	}
	if len(got["7"]) != 1 {
		t.Errorf("node 7 = %+v, want one rating", got["7"])
	}
	if len(h["42"]) != 4 {
		t.Error("Dedup modified its input")
	}
}

func TestDedupTieLastSubmissionWins(t *testing.T) {
	rs := []Rating{
		{User: "alice", Score: 0.1, Timestamp: day(3)},
		{User: "alice", Score: 0.9, Timestamp: day(3)},
	}
	got := DedupNode(rs)
	if len(got) != 1 || got[0].Score != 0.9 {
		t.Errorf("DedupNode = %+v, want the later submission (0.9)", got)
	}
}

func TestDedupIdempotent(t *testing.T) {
	h := History{
		"1": {
			{User: "a", Score: 0.1, Timestamp: day(5)},
			{User: "b", Score: 0.2, Timestamp: day(1)},
			{User: "a", Score: 0.3, Timestamp: day(5)},
			{User: "c", Score: 0.4, Timestamp: day(-2)},
			{User: "b", Score: 0.5, Timestamp: day(0)},
		},
		"2": {},
		"3": {
			{User: "z", Score: 1, Timestamp: day(9)},
			{User: "z", Score: 0, Timestamp: day(10)},
		},
	}

	once, _ := Dedup(h)
	twice, dropped := Dedup(once)
	if dropped != 0 {
		t.Errorf("second Dedup dropped %d, want 0", dropped)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Dedup not idempotent:\nonce  = %+v\ntwice = %+v", once, twice)
	}
	if _, ok := once["2"]; ok {
		t.Error("empty node survived Dedup")
	}
}

func TestDocumentRoundTripPreservesOrder(t *testing.T) {
	h := History{"42": {
		{User: "alice", Score: 0.8, Timestamp: day(0)},
		{User: "bob", Score: 0.25, Timestamp: day(1)},
	}}
	doc, err := ToDocument(h)
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}
	back, warnings := FromDocument(doc)
	if len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}
	if !reflect.DeepEqual(back, h) {
		t.Errorf("round trip = %+v, want %+v", back, h)
	}
}
