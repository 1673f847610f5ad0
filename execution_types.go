package main

import (
	"time"

	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// 执行序列相关数据结构
////////////////////////////////////////////////////////////////////////////////

// ExecutionSequence 预计算的执行序列
type ExecutionSequence struct {
	Meta   SequenceMeta       `json:"meta"`
	Tracks []motion.TrackPlan `json:"tracks"`
}

// SequenceMeta 执行序列元数据
type SequenceMeta struct {
	ID              string    `json:"id"`                // 序列ID
	SourceFile      string    `json:"source_file"`       // 源乐谱文件
	MaxLoopDuration float64   `json:"max_loop_duration"` // 最长循环时长（秒）
	TotalCommands   int       `json:"total_commands"`    // 每轮指令总数
	GeneratedAt     time.Time `json:"generated_at"`      // 生成时间
	Version         string    `json:"version"`           // 版本号
}

// Validate 检查每条音轨的指令都按目标时间排序
func (seq *ExecutionSequence) Validate() error {
	for _, plan := range seq.Tracks {
		if plan.LoopDuration <= 0 {
			return &motion.InvalidTempoError{Track: plan.Name, BPM: plan.BPM}
		}
		if err := plan.Commands.Validate(); err != nil {
			return err
		}
	}
	return nil
}
