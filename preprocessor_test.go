package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"drumbot/motion"
)

const demoScoreJSON = `{
  "top":    {"bpm": 120, "total_beats": 8, "items": [
    {"class": "note", "beat": 0}, {"class": "note", "beat": 1}, {"class": "note", "beat": 2}, {"class": "note", "beat": 3},
    {"class": "note", "beat": 4}, {"class": "note", "beat": 5}, {"class": "note", "beat": 6}, {"class": "note", "beat": 7}]},
  "bottom": {"bpm": 90, "total_beats": 4, "items": [{"class": "note", "beat": 0}, {"class": "rest", "beat": 1}, {"class": "note", "beat": 2}]}
}`

func TestExecFileName(t *testing.T) {
	tests := map[string]string{
		"scores/demo.json":       "demo.exec.json",
		"groove.mid":             "groove.exec.json",
		"/abs/path/fill.v2.midi": "fill.v2.exec.json",
	}
	for in, want := range tests {
		if got := ExecFileName(in); got != want {
			t.Errorf("ExecFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateExecutionSequenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	scorePath := writeFile(t, dir, "demo.json", demoScoreJSON)
	outPath := filepath.Join(dir, "exec", ExecFileName(scorePath))

	seq, err := NewSchedulePreprocessor().GenerateExecutionSequence(scorePath, outPath)
	if err != nil {
		t.Fatalf("GenerateExecutionSequence: %v", err)
	}

	if seq.Meta.ID == "" || seq.Meta.Version != ExecVersion || seq.Meta.SourceFile != "demo.json" {
		t.Fatalf("meta = %+v", seq.Meta)
	}
	if len(seq.Tracks) != 2 || seq.Tracks[0].Name != TrackTop || seq.Tracks[1].Name != TrackBottom {
		t.Fatalf("tracks = %+v", seq.Tracks)
	}
	if seq.Meta.TotalCommands != 16+4 {
		t.Fatalf("total commands = %d, want 20", seq.Meta.TotalCommands)
	}
	if seq.Meta.MaxLoopDuration != 4 {
		t.Fatalf("max loop = %v, want 4", seq.Meta.MaxLoopDuration)
	}

	loaded, err := loadExecutionSequence(outPath)
	if err != nil {
		t.Fatalf("loadExecutionSequence: %v", err)
	}
	if loaded.Meta.ID != seq.Meta.ID || len(loaded.Tracks[0].Commands) != 16 {
		t.Fatalf("loaded = %+v", loaded.Meta)
	}
	if loaded.Tracks[1].Commands[0] != seq.Tracks[1].Commands[0] {
		t.Fatalf("command mismatch: %+v vs %+v", loaded.Tracks[1].Commands[0], seq.Tracks[1].Commands[0])
	}
}

func TestLoadExecutionSequenceRejectsUnsorted(t *testing.T) {
	seq := &ExecutionSequence{
		Meta: SequenceMeta{ID: "x", Version: ExecVersion},
		Tracks: []motion.TrackPlan{{
			Name: TrackTop, BPM: 120, LoopDuration: 2,
			Commands: motion.Schedule{
				{TargetTime: 1.0, Action: motion.ActionStrike},
				{TargetTime: 0.5, Action: motion.ActionStrike},
			},
		}},
	}
	data, _ := json.Marshal(seq)
	path := filepath.Join(t.TempDir(), "bad.exec.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := loadExecutionSequence(path)
	var orderErr *motion.ScheduleOrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("err = %v, want ScheduleOrderError", err)
	}
	if orderErr.Index != 1 {
		t.Fatalf("index = %d, want 1", orderErr.Index)
	}
}

func TestLoadExecutionSequenceRejectsZeroLoop(t *testing.T) {
	data := `{"meta": {"id": "x"}, "tracks": [{"name": "top", "bpm": 0, "loop_duration": 0, "commands": []}]}`
	path := writeFile(t, t.TempDir(), "zero.exec.json", data)

	var tempoErr *motion.InvalidTempoError
	if _, err := loadExecutionSequence(path); !errors.As(err, &tempoErr) {
		t.Fatalf("err = %v, want InvalidTempoError", err)
	}
}

func TestGenerateExecutionSequenceMalformedScore(t *testing.T) {
	dir := t.TempDir()
	scorePath := writeFile(t, dir, "broken.json", `{"top": {"bpm": 120, "total_beats": 8, "items": [{"class": "note"}]}}`)

	_, err := NewSchedulePreprocessor().GenerateExecutionSequence(scorePath, filepath.Join(dir, "out.exec.json"))
	var malformed *motion.MalformedScoreError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedScoreError", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out.exec.json")); !os.IsNotExist(statErr) {
		t.Fatal("exec file written for malformed score")
	}
}
