package main

import (
	"time"

	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// 常量定义
////////////////////////////////////////////////////////////////////////////////

const (
	TrackTop    = motion.TrackTop    // 上声部（机械臂1）
	TrackBottom = motion.TrackBottom // 下声部（机械臂2）

	ExecVersion = "1.0" // 执行序列文件版本

	stopWaitTimeout = 2 * time.Second // 停止时等待清理完成的最长时间
)

// 默认安全范围
var defaultSafety = SafetyLimits{
	XMin: 160.0, XMax: 250.0,
	YMin: -180.0, YMax: 180.0,
	ZMin: 0, ZMax: 130.0,
}

var (
	defaultReadyPos  = [4]float64{230, 0, 60, 0}
	defaultStrikePos = [4]float64{226, 0.3, 41, 0}
)

// 全局演奏控制器
var playbackController = NewPlaybackController()
