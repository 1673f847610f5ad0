package motion

import (
	"errors"
	"io"
	"math"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

////////////////////////////////////////////////////////////////////////////////
// 标准MIDI文件导入
////////////////////////////////////////////////////////////////////////////////

const (
	defaultSMFTempo = 120.0
	bottomKeyLimit  = 48 // C3 以下（底鼓等低音鼓）归入 bottom 音轨
	beatsPerBar     = 4.0
)

// ImportSMF 把标准MIDI文件转换为乐谱。
// 第一个速度事件决定 bpm，所有力度大于0的 note-on 转为音符，
// total_beats 取最后一个音符所在小节的结尾（至少一小节）。
func ImportSMF(r io.Reader) (Score, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return Score{}, &MalformedScoreError{Err: err}
	}

	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks.Resolution() == 0 {
		return Score{}, &MalformedScoreError{Field: "time_format", Err: errors.New("only metric ticks are supported")}
	}
	resolution := float64(ticks.Resolution())

	bpm := 0.0
	var top, bottom []NoteEvent
	lastBeat := 0.0

	for _, tr := range s.Tracks {
		var absTicks uint64
		for _, ev := range tr {
			absTicks += uint64(ev.Delta)

			var tempo float64
			if bpm == 0 && ev.Message.GetMetaTempo(&tempo) && tempo > 0 {
				bpm = tempo
				continue
			}

			var channel, key, velocity uint8
			if !midi.Message(ev.Message).GetNoteStart(&channel, &key, &velocity) {
				continue
			}

			beat := float64(absTicks) / resolution
			note := NoteEvent{Kind: KindNote, BeatPosition: beat}
			if key < bottomKeyLimit {
				bottom = append(bottom, note)
			} else {
				top = append(top, note)
			}
			lastBeat = math.Max(lastBeat, beat)
		}
	}

	if bpm == 0 {
		bpm = defaultSMFTempo
	}
	totalBeats := math.Max(beatsPerBar, math.Floor(lastBeat/beatsPerBar+1)*beatsPerBar)

	var score Score
	if len(top) > 0 {
		score.Top = &Track{Name: TrackTop, BPM: bpm, TotalBeats: totalBeats, Items: top}
	}
	if len(bottom) > 0 {
		score.Bottom = &Track{Name: TrackBottom, BPM: bpm, TotalBeats: totalBeats, Items: bottom}
	}
	return score, nil
}
