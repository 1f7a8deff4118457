package store

import "testing"

func TestDecodeDailyContentCanonicalForm(t *testing.T) {
	raw := []byte(`[{"day":3,"lesson":"l1","exercise":"e1","affirmation":"a1","thought":"t1"},
		{"day":9,"lesson":"l2","exercise":"e2","affirmation":"a2","thought":"t2"}]`)
	days := decodeDailyContent(raw)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	// Stored numbering is not trusted; the slice is renumbered 1..n.
	if days[0].Day != 1 || days[1].Day != 2 {
		t.Fatalf("not renumbered: %+v", days)
	}
	if days[1].Lesson != "l2" {
		t.Fatalf("order lost: %+v", days)
	}
}

func TestDecodeDailyContentLegacyObjectOfArrays(t *testing.T) {
	raw := []byte(`{"lessons":["l1","l2"],"exercises":["e1","e2"],"affirmations":["a1"],"thoughts":["t1","t2"]}`)
	days := decodeDailyContent(raw)
	if len(days) != 2 {
		t.Fatalf("expected 2 days, got %d", len(days))
	}
	if days[0].Day != 1 || days[0].Lesson != "l1" || days[0].Affirmation != "a1" {
		t.Fatalf("day 1 wrong: %+v", days[0])
	}
	// Ragged arrays fill missing fields with their placeholders.
	if days[1].Day != 2 || days[1].Affirmation != "No affirmation available" || days[1].Thought != "t2" {
		t.Fatalf("day 2 wrong: %+v", days[1])
	}
}

func TestDecodeDailyContentGarbage(t *testing.T) {
	if days := decodeDailyContent([]byte("not json")); days != nil {
		t.Fatalf("expected nil for garbage, got %v", days)
	}
	if days := decodeDailyContent(nil); days != nil {
		t.Fatalf("expected nil for empty, got %v", days)
	}
}
