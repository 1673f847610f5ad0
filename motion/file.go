package motion

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// 支持的乐谱文件格式
const (
	FormatJSON = "json"
	FormatMIDI = "midi"
)

// ScoreFormat 根据扩展名判断格式，不支持时返回空字符串
func ScoreFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".mid", ".midi":
		return FormatMIDI
	}
	return ""
}

// LoadScoreFile 读取乐谱文件，按扩展名选择解析器
func LoadScoreFile(path string) (Score, error) {
	format := ScoreFormat(path)
	if format == "" {
		return Score{}, fmt.Errorf("unsupported score format %q", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Score{}, err
	}

	if format == FormatMIDI {
		return ImportSMF(bytes.NewReader(data))
	}
	return ParseScore(data)
}
