package arm

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial.v1"
)

// Pose 机械臂位姿（mm / 度）
type Pose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	R float64 `json:"r"`
}

// Controller 单台机械臂的串口控制器。一行一条文本指令。
type Controller struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
	name string
}

func Open(portName string, baudRate int) (*Controller, error) {
	mode := &serial.Mode{BaudRate: baudRate}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("无法打开串口 %s: %v", portName, err)
	}

	port.ResetInputBuffer()

	return &Controller{port: port, name: portName}, nil
}

// NewController 用已打开的连接创建控制器（测试或网络串口桥）
func NewController(name string, rw io.ReadWriteCloser) *Controller {
	return &Controller{port: rw, name: name}
}

func (c *Controller) Name() string { return c.name }

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

// send 写入指令，不等待应答
func (c *Controller) send(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return fmt.Errorf("串口 %s 未打开", c.name)
	}
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	_, err := c.port.Write([]byte(cmd))
	return err
}

// query 写入指令并读取应答
func (c *Controller) query(cmd string) (string, error) {
	if err := c.send(cmd); err != nil {
		return "", err
	}

	time.Sleep(50 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return "", fmt.Errorf("串口 %s 未打开", c.name)
	}
	buf := make([]byte, 1024)
	n, err := c.port.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	return string(buf[:n]), nil
}

// 命令方法
func (c *Controller) Home() error { return c.send("HOME") }

func (c *Controller) SetSpeed(velocity, acceleration float64) error {
	return c.send(fmt.Sprintf("SPEED %.2f %.2f", velocity, acceleration))
}

func (c *Controller) MoveTo(p Pose) error {
	return c.send(fmt.Sprintf("MOVE %.2f %.2f %.2f %.2f", p.X, p.Y, p.Z, p.R))
}

// Move 先设置速度再移动，两行连续写入
func (c *Controller) Move(p Pose, velocity, acceleration float64) error {
	if err := c.SetSpeed(velocity, acceleration); err != nil {
		return err
	}
	return c.MoveTo(p)
}

func (c *Controller) Status() (map[string]string, error) {
	raw, err := c.query("STATUS")
	if err != nil {
		return nil, err
	}
	result := map[string]string{"raw": raw}

	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "pose":
			result["pose"] = strings.TrimSpace(value)
		case "speed":
			result["speed"] = strings.TrimSpace(value)
		case "state":
			result["state"] = strings.TrimSpace(value)
		}
	}
	return result, nil
}
