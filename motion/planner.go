package motion

import (
	"math"
	"sort"
	"sync"
)

////////////////////////////////////////////////////////////////////////////////
// 动作规划：音符序列 → 间隔 → 力度映射 → 动作指令 → 排序
////////////////////////////////////////////////////////////////////////////////

// Sequence 过滤出音符并按拍位置稳定升序排序（相同拍位置保持原有顺序，不去重）
func Sequence(items []NoteEvent) []NoteEvent {
	notes := make([]NoteEvent, 0, len(items))
	for _, item := range items {
		if item.Kind == KindNote {
			notes = append(notes, item)
		}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].BeatPosition < notes[j].BeatPosition
	})
	return notes
}

// Intervals 计算每个音符到下一次击打的时间。音轨视为闭环：
// 最后一个音符的下一个是下一轮循环的第一个音符。
func Intervals(notes []NoteEvent, secondsPerBeat, loopDuration float64) []float64 {
	n := len(notes)
	intervals := make([]float64, n)
	for i, note := range notes {
		strikeTime := note.BeatPosition * secondsPerBeat
		nextStrikeTime := notes[(i+1)%n].BeatPosition * secondsPerBeat
		if i == n-1 {
			intervals[i] = (loopDuration - strikeTime) + nextStrikeTime
		} else {
			intervals[i] = nextStrikeTime - strikeTime
		}
	}
	return intervals
}

// Ease 幂律缓动，定义域与值域均为 [0,1]
func Ease(x, exponent float64) float64 {
	return math.Pow(x, exponent)
}

// Dynamics 回抬动作的力度参数
type Dynamics struct {
	Normalized   float64 `json:"normalized"`
	Eased        float64 `json:"eased"`
	BackswingZ   float64 `json:"backswing_z"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
}

// Express 把可用时间映射为回抬高度、速度和加速度。
// 时间越长回抬越高、动作越从容；时间越短动作越急促。
func (p Params) Express(interval float64) Dynamics {
	normalized := (interval - p.MinInterval) / (p.MaxInterval - p.MinInterval)
	normalized = math.Max(0, math.Min(1, normalized))
	eased := Ease(normalized, p.Exponent)

	return Dynamics{
		Normalized:   normalized,
		Eased:        eased,
		BackswingZ:   p.MinBackswing + (p.MaxBackswing-p.MinBackswing)*eased,
		Velocity:     p.MinVelocity + (p.MaxVelocity-p.MinVelocity)*(1-eased),
		Acceleration: p.MinAcceleration + (p.MaxAcceleration-p.MinAcceleration)*(1-eased),
	}
}

// BuildCommands 为每个有效音符生成击打与回抬两条指令。
// 间隔不大于 SkipThreshold 的音符不产生指令，也不影响相邻音符的间隔。
func BuildCommands(notes []NoteEvent, intervals []float64, secondsPerBeat float64, p Params) []MotionCommand {
	commands := make([]MotionCommand, 0, 2*len(notes))
	for i, note := range notes {
		interval := intervals[i]
		if interval <= p.SkipThreshold {
			continue
		}

		strikeTime := note.BeatPosition * secondsPerBeat
		dyn := p.Express(interval)

		commands = append(commands, MotionCommand{
			TargetTime:    strikeTime,
			Action:        ActionStrike,
			PositionZ:     p.StrikeZ,
			Velocity:      p.MaxVelocity,
			Acceleration:  p.MaxAcceleration,
			IsCompensated: false,
			SendTime:      strikeTime - p.PrepOffset - p.CommLatency,
		})

		// 回抬时机械臂已离开击打位置，无需准备提前量
		upstrokeTime := strikeTime + p.SettleDelay
		commands = append(commands, MotionCommand{
			TargetTime:    upstrokeTime,
			Action:        ActionUpstroke,
			PositionZ:     dyn.BackswingZ,
			Velocity:      dyn.Velocity,
			Acceleration:  dyn.Acceleration,
			IsCompensated: true,
			SendTime:      upstrokeTime - p.CommLatency,
		})
	}
	return commands
}

// SortByTarget 按 TargetTime 稳定排序
func SortByTarget(commands []MotionCommand) Schedule {
	sort.SliceStable(commands, func(i, j int) bool {
		return commands[i].TargetTime < commands[j].TargetTime
	})
	return Schedule(commands)
}

// PlanTrack 单条音轨的完整规划：Track → Schedule。无共享状态，可并发调用。
func PlanTrack(track Track, p Params) Schedule {
	notes := Sequence(track.Items)
	if len(notes) == 0 {
		return Schedule{}
	}

	spb := track.SecondsPerBeat()
	intervals := Intervals(notes, spb, track.LoopDuration())
	return SortByTarget(BuildCommands(notes, intervals, spb, p))
}

// PlanScore 并发规划乐谱中的每条音轨，结果顺序与 Score.Tracks() 一致
func PlanScore(score Score, p Params) []TrackPlan {
	tracks := score.Tracks()
	plans := make([]TrackPlan, len(tracks))

	var wg sync.WaitGroup
	for i, track := range tracks {
		wg.Add(1)
		go func(i int, track Track) {
			defer wg.Done()
			plans[i] = TrackPlan{
				Name:         track.Name,
				BPM:          track.BPM,
				LoopDuration: track.LoopDuration(),
				NoteCount:    track.NoteCount(),
				Commands:     PlanTrack(track, p),
			}
		}(i, track)
	}
	wg.Wait()

	return plans
}

// Merge 合并多条音轨的指令并按 TargetTime 稳定排序。
// 不做跨音轨去重，时间冲突交给调度器处理。
func Merge(plans ...TrackPlan) []TrackCommand {
	var merged []TrackCommand
	for _, plan := range plans {
		for _, cmd := range plan.Commands {
			merged = append(merged, TrackCommand{Track: plan.Name, MotionCommand: cmd})
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TargetTime < merged[j].TargetTime
	})
	return merged
}

// MaxLoopDuration 所有音轨中最长的循环时长，供外部传输时钟回绕使用
func MaxLoopDuration(plans []TrackPlan) float64 {
	maxDuration := 0.0
	for _, plan := range plans {
		if plan.LoopDuration > maxDuration {
			maxDuration = plan.LoopDuration
		}
	}
	return maxDuration
}

// Validate 检查排序不变量
func (s Schedule) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i-1].TargetTime > s[i].TargetTime {
			return &ScheduleOrderError{Index: i, Prev: s[i-1].TargetTime, Next: s[i].TargetTime}
		}
	}
	return nil
}

// MinSendTime 最早的发送时间（空序列返回0）
func (s Schedule) MinSendTime() float64 {
	if len(s) == 0 {
		return 0
	}
	minSend := s[0].SendTime
	for _, cmd := range s[1:] {
		if cmd.SendTime < minSend {
			minSend = cmd.SendTime
		}
	}
	return minSend
}
