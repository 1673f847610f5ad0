package motion

import "fmt"

// MalformedScoreError 乐谱结构无法解析或缺少必需字段
type MalformedScoreError struct {
	Track string // 出错的音轨（空表示整体结构）
	Field string // 出错字段
	Err   error
}

func (e *MalformedScoreError) Error() string {
	where := "score"
	if e.Track != "" {
		where = e.Track
	}
	if e.Field != "" {
		where += "." + e.Field
	}
	if e.Err == nil {
		return fmt.Sprintf("malformed score: %s", where)
	}
	return fmt.Sprintf("malformed score: %s: %v", where, e.Err)
}

func (e *MalformedScoreError) Unwrap() error { return e.Err }

// InvalidTempoError bpm 或 total_beats 不为正数
type InvalidTempoError struct {
	Track      string
	BPM        float64
	TotalBeats float64
}

func (e *InvalidTempoError) Error() string {
	return fmt.Sprintf("invalid tempo in %s: bpm=%g total_beats=%g (both must be > 0)", e.Track, e.BPM, e.TotalBeats)
}

// ScheduleOrderError 序列未按 TargetTime 升序排列
type ScheduleOrderError struct {
	Index int
	Prev  float64
	Next  float64
}

func (e *ScheduleOrderError) Error() string {
	return fmt.Sprintf("schedule not sorted at %d: %g > %g", e.Index, e.Prev, e.Next)
}
