package motion

import (
	"errors"
	"testing"
)

func TestParseScoreDemo(t *testing.T) {
	data := []byte(`{
		"top": {"bpm": 120, "total_beats": 8, "items": [
			{"class": "note", "beat": 1},
			{"class": "rest", "beat": 2},
			{"class": "note", "beat": 0}
		]},
		"bottom": {"bpm": 90, "total_beats": 4, "items": [{"class": "note", "beat": 0.5}]},
		"title": "ignored"
	}`)

	score, err := ParseScore(data)
	if err != nil {
		t.Fatalf("ParseScore failed: %v", err)
	}
	if score.Top == nil || score.Bottom == nil {
		t.Fatalf("expected both tracks")
	}
	if score.Top.Name != TrackTop || score.Top.BPM != 120 || score.Top.TotalBeats != 8 {
		t.Errorf("unexpected top: %+v", score.Top)
	}
	if len(score.Top.Items) != 3 || score.Top.Items[1].Kind != KindOther || score.Top.NoteCount() != 2 {
		t.Errorf("unexpected items: %+v", score.Top.Items)
	}
	if score.Top.LoopDuration() != 4.0 {
		t.Errorf("loop = %v", score.Top.LoopDuration())
	}
	if tracks := score.Tracks(); len(tracks) != 2 || tracks[0].Name != TrackTop {
		t.Errorf("unexpected track order")
	}
}

func TestParseScoreOptionalTracks(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		tracks int
	}{
		{"empty object", `{}`, 0},
		{"null tracks", `{"top": null, "bottom": null}`, 0},
		{"only bottom", `{"bottom": {"bpm": 100, "total_beats": 4}}`, 1},
		{"items null", `{"top": {"bpm": 100, "total_beats": 4, "items": null}}`, 1},
		{"note beyond loop", `{"top": {"bpm": 100, "total_beats": 4, "items": [{"class":"note","beat":9}]}}`, 1},
		{"other without beat", `{"top": {"bpm": 100, "total_beats": 4, "items": [{"class":"marker"}]}}`, 1},
		{"other with null beat", `{"top": {"bpm": 100, "total_beats": 4, "items": [{"class":"marker","beat":null}]}}`, 1},
		{"item without class", `{"top": {"bpm": 100, "total_beats": 4, "items": [{"beat":1}]}}`, 1},
	}
	for _, tt := range tests {
		score, err := ParseScore([]byte(tt.data))
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if got := len(score.Tracks()); got != tt.tracks {
			t.Errorf("%s: tracks = %d, want %d", tt.name, got, tt.tracks)
		}
	}
}

func TestParseScoreMalformed(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"not json", `{"top": `, ""},
		{"array root", `[1,2]`, ""},
		{"null root", `null`, ""},
		{"track not object", `{"top": 5}`, ""},
		{"missing bpm", `{"top": {"total_beats": 8}}`, "bpm"},
		{"string bpm", `{"top": {"bpm": "fast", "total_beats": 8}}`, "bpm"},
		{"missing total_beats", `{"top": {"bpm": 120}}`, "total_beats"},
		{"items not array", `{"top": {"bpm": 120, "total_beats": 8, "items": {}}}`, "items"},
		{"string beat", `{"top": {"bpm": 120, "total_beats": 8, "items": [{"class":"note","beat":"x"}]}}`, "items[0].beat"},
		{"string beat on rest", `{"top": {"bpm": 120, "total_beats": 8, "items": [{"class":"note","beat":0},{"class":"rest","beat":"x"}]}}`, "items[1].beat"},
		{"object beat without class", `{"top": {"bpm": 120, "total_beats": 8, "items": [{"beat":{}}]}}`, "items[0].beat"},
		{"missing beat", `{"top": {"bpm": 120, "total_beats": 8, "items": [{"class":"note"}]}}`, "items[0].beat"},
		{"negative beat", `{"top": {"bpm": 120, "total_beats": 8, "items": [{"class":"note","beat":0},{"class":"note","beat":-1}]}}`, "items[1].beat"},
	}
	for _, tt := range tests {
		_, err := ParseScore([]byte(tt.data))
		var malformed *MalformedScoreError
		if !errors.As(err, &malformed) {
			t.Errorf("%s: expected MalformedScoreError, got %v", tt.name, err)
			continue
		}
		if malformed.Field != tt.field {
			t.Errorf("%s: field = %q, want %q", tt.name, malformed.Field, tt.field)
		}
	}
}

func TestParseScoreInvalidTempo(t *testing.T) {
	tests := []string{
		`{"top": {"bpm": 0, "total_beats": 8}}`,
		`{"top": {"bpm": -120, "total_beats": 8}}`,
		`{"top": {"bpm": 120, "total_beats": 0}}`,
		`{"top": {"bpm": 120, "total_beats": 8}, "bottom": {"bpm": 120, "total_beats": -4}}`,
	}
	for _, data := range tests {
		_, err := ParseScore([]byte(data))
		var tempoErr *InvalidTempoError
		if !errors.As(err, &tempoErr) {
			t.Errorf("%s: expected InvalidTempoError, got %v", data, err)
		}
	}
}
