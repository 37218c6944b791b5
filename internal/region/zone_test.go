package region

import "testing"

func TestAutoSelectLowestLatencyWins(t *testing.T) {
	r := NewRegistry()
	r.SetLatency("eu-netherlands-south", 40, Online)
	r.SetLatency("eu-frankfurt", 15, Online)
	r.SetLatency("us-east-virginia", 120, Offline)

	z, ok := r.AutoSelect()
	if !ok {
		t.Fatal("expected a zone to be selected")
	}
	if z.ID != "eu-frankfurt" {
		t.Fatalf("expected eu-frankfurt (lowest latency), got %s", z.ID)
	}
}

func TestAutoSelectTieBreaksOnInsertionOrder(t *testing.T) {
	r := NewRegistry()
	all := r.All()
	first, second := all[0], all[1]
	r.SetLatency(first.ID, 50, Online)
	r.SetLatency(second.ID, 50, Online)

	z, ok := r.AutoSelect()
	if !ok {
		t.Fatal("expected a zone to be selected")
	}
	if z.ID != first.ID {
		t.Fatalf("expected tie to break on insertion order (%s), got %s", first.ID, z.ID)
	}
}

func TestAutoSelectNoOnlineZones(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.AutoSelect(); ok {
		t.Fatal("expected no selection when no zone is online")
	}
}

func TestRegionLabelFromPrefix(t *testing.T) {
	cases := map[string]string{
		"eu-netherlands-south": "Europe",
		"us-east-virginia":     "United States",
		"ca-central":           "Canada",
		"ap-tokyo":             "Asia Pacific",
		"xx-unknown":           "Other",
	}
	for id, want := range cases {
		if got := regionLabel(id); got != want {
			t.Errorf("regionLabel(%q) = %q, want %q", id, got, want)
		}
	}
}
