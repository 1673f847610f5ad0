package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// 文件读取器模块
////////////////////////////////////////////////////////////////////////////////

// FileReader 文件读取器
type FileReader struct{}

// NewFileReader 创建新的文件读取器
func NewFileReader() *FileReader {
	return &FileReader{}
}

// LoadConfig 加载主配置文件
func (fr *FileReader) LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "无法读取配置文件 %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "配置文件格式错误 %s", path)
	}

	applyConfigDefaults(&cfg)
	return cfg, nil
}

// LoadConfigOrDefault 配置文件不存在时使用默认配置
func (fr *FileReader) LoadConfigOrDefault(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("⚠️  配置文件 %s 不存在，使用默认配置\n", path)
		var cfg Config
		applyConfigDefaults(&cfg)
		return cfg, nil
	}
	return fr.LoadConfig(path)
}

// applyConfigDefaults 设置默认值
func applyConfigDefaults(cfg *Config) {
	if cfg.ScoreDir == "" {
		cfg.ScoreDir = "scores"
	}
	if cfg.ExecDir == "" {
		cfg.ExecDir = "exec"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "data/drumbot.db"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8088"
	}
	if cfg.PrerollS <= 0 {
		cfg.PrerollS = 0.4
	}
	if cfg.Safety == (SafetyLimits{}) {
		cfg.Safety = defaultSafety
	}

	for _, robot := range []*RobotConfig{&cfg.Robots.Top, &cfg.Robots.Bottom} {
		if robot.BaudRate <= 0 {
			robot.BaudRate = 115200
		}
		if robot.ReadyPos == ([4]float64{}) {
			robot.ReadyPos = defaultReadyPos
		}
		if robot.StrikePos == ([4]float64{}) {
			robot.StrikePos = defaultStrikePos
		}
	}
}

// LoadScore 加载乐谱文件（.json 或 .mid/.midi）
func (fr *FileReader) LoadScore(path string) (motion.Score, error) {
	score, err := motion.LoadScoreFile(path)
	if err != nil {
		return motion.Score{}, errors.Wrapf(err, "加载乐谱失败 %s", filepath.Base(path))
	}
	return score, nil
}

// scoreFormat 根据扩展名判断乐谱格式，不支持的返回空字符串
func scoreFormat(path string) string {
	return motion.ScoreFormat(path)
}

// CheckFileExists 检查文件是否存在
func (fr *FileReader) CheckFileExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("文件不存在: %s", path)
	}
	return nil
}

// SafeJoin 把用户给出的文件名限制在目录内
func SafeJoin(dir, name string) (string, error) {
	clean := filepath.Base(filepath.Clean("/" + name))
	if clean == "/" || clean == "." || clean == "" {
		return "", fmt.Errorf("无效的文件名: %q", name)
	}
	return filepath.Join(dir, clean), nil
}
