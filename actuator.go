package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"drumbot/arm"
)

////////////////////////////////////////////////////////////////////////////////
// 执行器发送模块（串口 / HTTP桥接 / 调试模式）
////////////////////////////////////////////////////////////////////////////////

// ActuatorSender 把移动指令送到机械臂
type ActuatorSender interface {
	Send(move ArmMove) error
	MoveToReady(track string, pose arm.Pose) error
	Close() error
}

// ArmInspector 可直接访问机械臂的执行器（仅串口模式）
type ArmInspector interface {
	ArmStatus() (map[string]map[string]string, error)
	Home() error
}

// 全局HTTP客户端（连接池复用）
var globalHTTPClient *http.Client
var httpClientOnce sync.Once

// InitGlobalHTTPClient 初始化全局HTTP客户端（带连接池）
func InitGlobalHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		globalHTTPClient = &http.Client{
			Timeout: 100 * time.Millisecond, // 设置100ms超时，避免阻塞调度
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
				DisableCompression:  true,
			},
		}
	})
	return globalHTTPClient
}

// NewActuatorSender 根据配置选择发送方式：调试模式 > HTTP桥接 > 串口
func NewActuatorSender(cfg Config) (ActuatorSender, error) {
	if cfg.DryRun {
		return &dryRunSender{verbose: cfg.Verbose}, nil
	}
	if cfg.ActuatorBridgeURL != "" {
		return &bridgeSender{baseURL: cfg.ActuatorBridgeURL, client: InitGlobalHTTPClient()}, nil
	}
	return openSerialSender(cfg)
}

////////////////////////////////////////////////////////////////////////////////
// 串口发送
////////////////////////////////////////////////////////////////////////////////

type serialSender struct {
	arms map[string]*arm.Controller
}

func openSerialSender(cfg Config) (*serialSender, error) {
	s := &serialSender{arms: map[string]*arm.Controller{}}

	for _, track := range []string{TrackTop, TrackBottom} {
		robot, _ := cfg.Robot(track)
		if robot.Port == "" {
			continue
		}
		controller, err := arm.Open(robot.Port, robot.BaudRate)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "机械臂 %s 初始化失败", track)
		}
		fmt.Printf("✅ 机械臂 [%s] 已连接，串口: %s\n", track, robot.Port)
		s.arms[track] = controller
	}

	if len(s.arms) == 0 {
		return nil, errors.New("没有配置任何机械臂串口（robots.top.port / robots.bottom.port）")
	}
	return s, nil
}

func (s *serialSender) Send(move ArmMove) error {
	controller, ok := s.arms[move.Track]
	if !ok {
		// 该声部没有连接机械臂，直接忽略
		return nil
	}
	return controller.Move(move.Pose, move.Velocity, move.Acceleration)
}

func (s *serialSender) MoveToReady(track string, pose arm.Pose) error {
	controller, ok := s.arms[track]
	if !ok {
		return nil
	}
	return controller.Move(pose, 200, 200)
}

// ArmStatus 查询每台已连接机械臂的状态
func (s *serialSender) ArmStatus() (map[string]map[string]string, error) {
	result := map[string]map[string]string{}
	for _, track := range []string{TrackTop, TrackBottom} {
		controller, ok := s.arms[track]
		if !ok {
			continue
		}
		status, err := controller.Status()
		if err != nil {
			return nil, errors.Wrapf(err, "查询机械臂 %s 状态失败", track)
		}
		result[track] = status
	}
	return result, nil
}

// Home 所有机械臂回原点
func (s *serialSender) Home() error {
	for _, track := range []string{TrackTop, TrackBottom} {
		controller, ok := s.arms[track]
		if !ok {
			continue
		}
		if err := controller.Home(); err != nil {
			return errors.Wrapf(err, "机械臂 %s 回原点失败", track)
		}
		fmt.Printf("🏠 机械臂 [%s] 回原点\n", track)
	}
	return nil
}

// Close 断开所有机械臂，返回第一个错误
func (s *serialSender) Close() error {
	var firstErr error
	for _, track := range []string{TrackTop, TrackBottom} {
		controller, ok := s.arms[track]
		if !ok {
			continue
		}
		if err := controller.Close(); err != nil {
			fmt.Printf("❌ 机械臂 [%s] 断开失败: %v\n", track, err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "机械臂 %s 断开失败", track)
			}
			continue
		}
		fmt.Printf("✅ 机械臂 [%s] 已断开 (%s)\n", track, controller.Name())
	}
	return firstErr
}

////////////////////////////////////////////////////////////////////////////////
// HTTP桥接发送
////////////////////////////////////////////////////////////////////////////////

type bridgeSender struct {
	baseURL string
	client  *http.Client
}

func (b *bridgeSender) Send(move ArmMove) error {
	return b.post("/api/move", move)
}

func (b *bridgeSender) MoveToReady(track string, pose arm.Pose) error {
	return b.post("/api/move", ArmMove{Track: track, Action: "ready", Pose: pose, Velocity: 200, Acceleration: 200})
}

func (b *bridgeSender) Close() error { return nil }

// post 转发到桥接服务（同步，等待响应）
func (b *bridgeSender) post(path string, payload any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "消息序列化失败")
	}

	resp, err := b.client.Post(b.baseURL+path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return errors.Wrap(err, "发送到桥接服务失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("桥接服务错误: %s", string(body))
	}

	return nil
}

////////////////////////////////////////////////////////////////////////////////
// 调试模式（只打印不发送）
////////////////////////////////////////////////////////////////////////////////

type dryRunSender struct {
	verbose bool
}

func (d *dryRunSender) Send(move ArmMove) error {
	if d.verbose {
		fmt.Printf("   [dry] %-6s %-8s z=%.2f v=%.1f a=%.1f\n", move.Track, move.Action, move.Pose.Z, move.Velocity, move.Acceleration)
	}
	return nil
}

func (d *dryRunSender) MoveToReady(track string, pose arm.Pose) error {
	if d.verbose {
		fmt.Printf("   [dry] %-6s ready    z=%.2f\n", track, pose.Z)
	}
	return nil
}

func (d *dryRunSender) Close() error { return nil }
