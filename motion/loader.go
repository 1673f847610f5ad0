package motion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
// 乐谱加载与规范化
////////////////////////////////////////////////////////////////////////////////

// 乐谱中的音轨键名，顺序即规划顺序
const (
	TrackTop    = "top"
	TrackBottom = "bottom"
)

var (
	errMissing   = errors.New("required field missing")
	errNotNumber = errors.New("not a number")
	errNegative  = errors.New("must be >= 0")
)

// ParseScore 解析 JSON 乐谱：
//
//	{"top": {"bpm": 120, "total_beats": 8, "items": [{"class": "note", "beat": 0}]}, "bottom": {...}}
//
// top 与 bottom 都是可选的；两者都缺失时返回空乐谱。
func ParseScore(data []byte) (Score, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return Score{}, &MalformedScoreError{Err: err}
	}
	if root == nil {
		return Score{}, &MalformedScoreError{Err: errors.New("score must be a JSON object")}
	}

	var score Score
	for _, name := range []string{TrackTop, TrackBottom} {
		raw, ok := root[name]
		if !ok || isNull(raw) {
			continue
		}
		track, err := parseTrack(name, raw)
		if err != nil {
			return Score{}, err
		}
		if name == TrackTop {
			score.Top = &track
		} else {
			score.Bottom = &track
		}
	}
	return score, nil
}

// rawItem 乐谱条目的原始形式；class 非 "note" 的条目一律视为其他条目
type rawItem struct {
	Class any             `json:"class"`
	Beat  json.RawMessage `json:"beat"`
}

func parseTrack(name string, raw json.RawMessage) (Track, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		if err == nil {
			err = errors.New("track must be a JSON object")
		}
		return Track{}, &MalformedScoreError{Track: name, Err: err}
	}

	bpm, err := requireNumber(fields["bpm"])
	if err != nil {
		return Track{}, &MalformedScoreError{Track: name, Field: "bpm", Err: err}
	}
	totalBeats, err := requireNumber(fields["total_beats"])
	if err != nil {
		return Track{}, &MalformedScoreError{Track: name, Field: "total_beats", Err: err}
	}
	if bpm <= 0 || totalBeats <= 0 {
		return Track{}, &InvalidTempoError{Track: name, BPM: bpm, TotalBeats: totalBeats}
	}

	track := Track{Name: name, BPM: bpm, TotalBeats: totalBeats, Items: []NoteEvent{}}

	itemsRaw, ok := fields["items"]
	if !ok || isNull(itemsRaw) {
		return track, nil
	}

	var items []rawItem
	if err := json.Unmarshal(itemsRaw, &items); err != nil {
		return Track{}, &MalformedScoreError{Track: name, Field: "items", Err: err}
	}

	for i, item := range items {
		class, _ := item.Class.(string)
		if class != "note" {
			// 非音符条目可以没有拍位置，但给出时必须是数值
			beat, err := requireNumber(item.Beat)
			if errors.Is(err, errNotNumber) {
				return Track{}, &MalformedScoreError{Track: name, Field: fmt.Sprintf("items[%d].beat", i), Err: err}
			}
			track.Items = append(track.Items, NoteEvent{Kind: KindOther, BeatPosition: beat})
			continue
		}

		beat, err := requireNumber(item.Beat)
		if err == nil && beat < 0 {
			err = errNegative
		}
		if err != nil {
			return Track{}, &MalformedScoreError{Track: name, Field: fmt.Sprintf("items[%d].beat", i), Err: err}
		}
		track.Items = append(track.Items, NoteEvent{Kind: KindNote, BeatPosition: beat})
	}

	return track, nil
}

func requireNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || isNull(raw) {
		return 0, errMissing
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errNotNumber
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
