package motion

import (
	"bytes"
	"errors"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func buildSMF(t *testing.T, bpm float64, notes []struct {
	delta uint32
	key   uint8
}) []byte {
	t.Helper()

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var tr smf.Track
	if bpm > 0 {
		tr.Add(0, smf.MetaTempo(bpm))
	}
	for _, n := range notes {
		tr.Add(n.delta, midi.NoteOn(9, n.key, 100))
		tr.Add(60, midi.NoteOff(9, n.key))
	}
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatalf("add track: %v", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("write smf: %v", err)
	}
	return buf.Bytes()
}

func TestImportSMFSplitsTracks(t *testing.T) {
	// 36 = 底鼓 → bottom；38 = 军鼓 → top。音符间隔一拍（480 ticks）
	data := buildSMF(t, 100, []struct {
		delta uint32
		key   uint8
	}{
		{0, 36},
		{420, 38},
		{420, 36},
		{420, 38},
		{900, 38},
	})

	score, err := ImportSMF(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ImportSMF failed: %v", err)
	}
	if score.Top == nil || score.Bottom == nil {
		t.Fatalf("expected both tracks, got %+v", score)
	}
	if score.Top.BPM != 100 || score.Bottom.BPM != 100 {
		t.Errorf("bpm = %v/%v, want 100", score.Top.BPM, score.Bottom.BPM)
	}

	wantTop := []float64{1, 3, 5}
	if len(score.Top.Items) != len(wantTop) {
		t.Fatalf("top notes = %+v", score.Top.Items)
	}
	for i, b := range wantTop {
		if !near(score.Top.Items[i].BeatPosition, b, eps) {
			t.Errorf("top[%d] = %v, want %v", i, score.Top.Items[i].BeatPosition, b)
		}
	}
	if len(score.Bottom.Items) != 2 || !near(score.Bottom.Items[1].BeatPosition, 2, eps) {
		t.Errorf("bottom notes = %+v", score.Bottom.Items)
	}
	// 最后一个音符在第5拍 → 两小节
	if score.Top.TotalBeats != 8 {
		t.Errorf("total beats = %v, want 8", score.Top.TotalBeats)
	}
}

func TestImportSMFDefaultTempo(t *testing.T) {
	data := buildSMF(t, 0, []struct {
		delta uint32
		key   uint8
	}{{0, 60}})

	score, err := ImportSMF(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ImportSMF failed: %v", err)
	}
	if score.Top == nil || score.Top.BPM != defaultSMFTempo || score.Top.TotalBeats != 4 {
		t.Fatalf("unexpected score: %+v", score.Top)
	}
	if score.Bottom != nil {
		t.Fatalf("bottom should be absent")
	}
}

func TestImportSMFGarbage(t *testing.T) {
	_, err := ImportSMF(bytes.NewReader([]byte("not a midi file")))
	var malformed *MalformedScoreError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedScoreError, got %v", err)
	}
}
