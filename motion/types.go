package motion

////////////////////////////////////////////////////////////////////////////////
// 乐谱与动作指令数据结构
////////////////////////////////////////////////////////////////////////////////

// EventKind 乐谱条目类型
type EventKind int

const (
	KindOther EventKind = iota // 非音符条目（休止、标记等）
	KindNote                   // 音符
)

func (k EventKind) String() string {
	if k == KindNote {
		return "note"
	}
	return "other"
}

// NoteEvent 乐谱条目（加载后不可变）
type NoteEvent struct {
	Kind         EventKind `json:"kind"`
	BeatPosition float64   `json:"beat"` // 拍位置（≥0）
}

// Track 单条循环音轨
type Track struct {
	Name       string      `json:"name"`
	BPM        float64     `json:"bpm"`
	TotalBeats float64     `json:"total_beats"`
	Items      []NoteEvent `json:"items"`
}

// SecondsPerBeat 每拍秒数
func (t Track) SecondsPerBeat() float64 {
	return 60.0 / t.BPM
}

// LoopDuration 一个循环的时长（秒）
func (t Track) LoopDuration() float64 {
	return t.TotalBeats * t.SecondsPerBeat()
}

// NoteCount 音符数量（不含其他条目）
func (t Track) NoteCount() int {
	n := 0
	for _, item := range t.Items {
		if item.Kind == KindNote {
			n++
		}
	}
	return n
}

// Score 输入乐谱：上下两条可选音轨，分别驱动两台机械臂
type Score struct {
	Top    *Track `json:"top,omitempty"`
	Bottom *Track `json:"bottom,omitempty"`
}

// Tracks 按 top、bottom 顺序返回存在的音轨
func (s Score) Tracks() []Track {
	var tracks []Track
	if s.Top != nil {
		tracks = append(tracks, *s.Top)
	}
	if s.Bottom != nil {
		tracks = append(tracks, *s.Bottom)
	}
	return tracks
}

// Action 动作类型
type Action string

const (
	ActionStrike   Action = "strike"   // 击打
	ActionUpstroke Action = "upstroke" // 回抬
)

// MotionCommand 单条动作指令，创建后不再修改
type MotionCommand struct {
	TargetTime    float64 `json:"target_time"` // 物理到达时间（秒，相对循环起点）
	Action        Action  `json:"action"`
	PositionZ     float64 `json:"position_z"` // Z轴高度（mm）
	Velocity      float64 `json:"velocity"`
	Acceleration  float64 `json:"acceleration"`
	IsCompensated bool    `json:"is_compensated"`
	SendTime      float64 `json:"send_time"` // 发送时间，可能为负
}

// Schedule 按 TargetTime 升序排列的动作指令序列
type Schedule []MotionCommand

// TrackPlan 单条音轨的规划结果
type TrackPlan struct {
	Name         string   `json:"name"`
	BPM          float64  `json:"bpm"`
	LoopDuration float64  `json:"loop_duration"`
	NoteCount    int      `json:"note_count"`
	Commands     Schedule `json:"commands"`
}

// TrackCommand 合并视图中带音轨标识的指令
type TrackCommand struct {
	Track string `json:"track"`
	MotionCommand
}
