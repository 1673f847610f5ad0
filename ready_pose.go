package main

import "fmt"

////////////////////////////////////////////////////////////////////////////////
// 预备姿态模块
////////////////////////////////////////////////////////////////////////////////

// ReadyPoseController 预备姿态控制器
type ReadyPoseController struct {
	encoder *CommandEncoder
}

// NewReadyPoseController 创建新的预备姿态控制器
func NewReadyPoseController(encoder *CommandEncoder) *ReadyPoseController {
	return &ReadyPoseController{encoder: encoder}
}

// MoveAll 把所有机械臂移到预备位姿，返回第一个错误
func (rpc *ReadyPoseController) MoveAll(cfg Config, sender ActuatorSender) error {
	var firstErr error
	for _, track := range []string{TrackTop, TrackBottom} {
		robot, _ := cfg.Robot(track)
		pose := rpc.encoder.ReadyPose(robot)
		if err := sender.MoveToReady(track, pose); err != nil {
			fmt.Printf("❌ [%s] 回到预备姿态失败: %v\n", track, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Printf("🥁 [%s] 预备姿态 (%.1f, %.1f, %.1f, %.1f)\n", track, pose.X, pose.Y, pose.Z, pose.R)
	}
	return firstErr
}
