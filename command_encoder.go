package main

import (
	"math"

	"drumbot/arm"
	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// 指令编码器模块：动作指令 → 机械臂位姿
////////////////////////////////////////////////////////////////////////////////

// ArmMove 发往单台机械臂的一次移动
type ArmMove struct {
	Track        string   `json:"track"`
	Action       string   `json:"action"`
	Pose         arm.Pose `json:"pose"`
	Velocity     float64  `json:"velocity"`
	Acceleration float64  `json:"acceleration"`
	Clamped      bool     `json:"clamped"` // 是否被安全范围钳制
}

// CommandEncoder 指令编码器
type CommandEncoder struct {
	safety SafetyLimits
}

// NewCommandEncoder 创建新的指令编码器
func NewCommandEncoder(safety SafetyLimits) *CommandEncoder {
	return &CommandEncoder{safety: safety}
}

// Encode 构建移动指令：
// 击打使用击打位姿的 x/y/r，回抬使用预备位姿的 x/y/r，Z 取自动作指令
func (ce *CommandEncoder) Encode(track string, robot RobotConfig, cmd motion.MotionCommand) ArmMove {
	base := robot.ReadyPos
	if cmd.Action == motion.ActionStrike {
		base = robot.StrikePos
	}

	pose, clamped := ce.clamp(arm.Pose{X: base[0], Y: base[1], Z: cmd.PositionZ, R: base[3]})

	return ArmMove{
		Track:        track,
		Action:       string(cmd.Action),
		Pose:         pose,
		Velocity:     cmd.Velocity,
		Acceleration: cmd.Acceleration,
		Clamped:      clamped,
	}
}

// ReadyPose 预备位姿（钳制后）
func (ce *CommandEncoder) ReadyPose(robot RobotConfig) arm.Pose {
	pose, _ := ce.clamp(arm.Pose{X: robot.ReadyPos[0], Y: robot.ReadyPos[1], Z: robot.ReadyPos[2], R: robot.ReadyPos[3]})
	return pose
}

// clamp 把位姿限制在安全范围内
func (ce *CommandEncoder) clamp(p arm.Pose) (arm.Pose, bool) {
	out := arm.Pose{
		X: clampFloat(p.X, ce.safety.XMin, ce.safety.XMax),
		Y: clampFloat(p.Y, ce.safety.YMin, ce.safety.YMax),
		Z: clampFloat(p.Z, ce.safety.ZMin, ce.safety.ZMax),
		R: p.R,
	}
	return out, out != p
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
