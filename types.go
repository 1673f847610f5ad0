package main

import (
	"context"
	"sync"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// 配置与数据结构定义
////////////////////////////////////////////////////////////////////////////////

// 演奏配置
type Config struct {
	ScoreDir          string  `yaml:"score_dir"`           // 乐谱目录
	ExecDir           string  `yaml:"exec_dir"`            // 执行序列目录
	DBPath            string  `yaml:"db_path"`             // 指令日志数据库路径
	ListenAddr        string  `yaml:"listen_addr"`         // Web服务监听地址
	ActuatorBridgeURL string  `yaml:"actuator_bridge_url"` // 机械臂桥接服务地址（为空则使用串口）
	DryRun            bool    `yaml:"dry_run"`             // 是否为调试模式（只打印不发送）
	Verbose           bool    `yaml:"verbose"`             // 打印每条发送的指令
	PrerollS          float64 `yaml:"preroll_s"`           // 第一轮循环前的额外准备时间（秒）

	Robots struct {
		Top    RobotConfig `yaml:"top"`    // 上声部机械臂
		Bottom RobotConfig `yaml:"bottom"` // 下声部机械臂
	} `yaml:"robots"`

	Safety SafetyLimits `yaml:"safety"`

	Ready struct {
		Enabled bool `yaml:"enabled"` // 是否在演奏前后回到预备姿态
		HoldMS  int  `yaml:"hold_ms"` // 预备姿态保持时间（毫秒）
	} `yaml:"ready"`
}

// 机械臂配置
type RobotConfig struct {
	Port      string     `yaml:"port"`       // 串口名称（如：/dev/ttyUSB0、COM3）
	BaudRate  int        `yaml:"baud_rate"`  // 波特率
	ReadyPos  [4]float64 `yaml:"ready_pos"`  // 预备位姿 x,y,z,r
	StrikePos [4]float64 `yaml:"strike_pos"` // 击打位姿 x,y,z,r
}

// 安全范围（超出时钳制）
type SafetyLimits struct {
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
	YMin float64 `yaml:"y_min"`
	YMax float64 `yaml:"y_max"`
	ZMin float64 `yaml:"z_min"`
	ZMax float64 `yaml:"z_max"`
}

// Robot 按音轨名取机械臂配置
func (cfg Config) Robot(track string) (RobotConfig, bool) {
	switch track {
	case TrackTop:
		return cfg.Robots.Top, true
	case TrackBottom:
		return cfg.Robots.Bottom, true
	}
	return RobotConfig{}, false
}

////////////////////////////////////////////////////////////////////////////////
// Web服务相关结构体
////////////////////////////////////////////////////////////////////////////////

// 乐谱文件信息
type ScoreFileInfo struct {
	Filename     string           `json:"filename"`        // 文件名
	Format       string           `json:"format"`          // json 或 midi
	Tracks       []ScoreTrackInfo `json:"tracks"`          // 音轨概要
	MaxLoopSec   float64          `json:"max_loop_sec"`    // 最长循环时长
	FilePath     string           `json:"file_path"`       // 完整文件路径
	FileSize     int64            `json:"file_size"`       // 文件大小
	ModifiedAt   string           `json:"modified_at"`     // 修改时间
	InvalidError string           `json:"error,omitempty"` // 解析失败原因
}

// 音轨概要
type ScoreTrackInfo struct {
	Name         string  `json:"name"`
	BPM          float64 `json:"bpm"`
	TotalBeats   float64 `json:"total_beats"`
	Notes        int     `json:"notes"`
	LoopDuration float64 `json:"loop_duration"`
}

// 演奏状态
type PlaybackStatus struct {
	IsPlaying     bool               `json:"is_playing"`           // 是否正在演奏
	RunID         string             `json:"run_id"`               // 本次演奏ID
	CurrentFile   string             `json:"current_file"`         // 当前文件
	Loop          int                `json:"loop"`                 // 当前循环轮次
	SentCommands  int                `json:"sent_commands"`        // 已发送指令数
	LateCommands  int                `json:"late_commands"`        // 迟发指令数
	MaxLatenessMS float64            `json:"max_lateness_ms"`      // 最大迟发（毫秒）
	ElapsedTime   string             `json:"elapsed_time"`         // 已播放时间
	CurrentTime   float64            `json:"current_time"`         // 传输时钟位置（秒）
	Rate          float64            `json:"rate"`                 // 传输时钟倍率
	MaxLoopSec    float64            `json:"max_loop_sec"`         // 传输时钟回绕长度
	TrackProgress map[string]float64 `json:"track_progress"`       // 各音轨在本轮中的进度（0-100）
	LastError     string             `json:"last_error,omitempty"` // 最后一次错误
}

// 演奏控制器
type PlaybackController struct {
	mutex     sync.RWMutex
	status    PlaybackStatus
	cancel    context.CancelFunc
	doneChan  chan struct{} // 播放完成信号
	isRunning bool
	startTime time.Time
	clock     *TransportClock

	loopDurations map[string]float64 // 各音轨循环时长（计算进度）
}
