package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// 执行序列预处理器
////////////////////////////////////////////////////////////////////////////////

// SchedulePreprocessor 序列预处理器
type SchedulePreprocessor struct {
	params     motion.Params
	fileReader *FileReader
}

// NewSchedulePreprocessor 创建新的序列预处理器
func NewSchedulePreprocessor() *SchedulePreprocessor {
	return &SchedulePreprocessor{
		params:     motion.DefaultParams(),
		fileReader: NewFileReader(),
	}
}

// GenerateExecutionSequence 生成执行序列文件
func (sp *SchedulePreprocessor) GenerateExecutionSequence(scoreFile string, outputFile string) (*ExecutionSequence, error) {
	fmt.Printf("🔄 开始预处理: %s\n", scoreFile)

	// 1. 加载乐谱
	score, err := sp.fileReader.LoadScore(scoreFile)
	if err != nil {
		return nil, err
	}

	// 2. 规划动作序列
	sequence := sp.BuildSequence(score, filepath.Base(scoreFile))

	for _, plan := range sequence.Tracks {
		fmt.Printf("   [%s] BPM: %.1f, 音符: %d, 循环: %.2fs, 指令: %d\n",
			plan.Name, plan.BPM, plan.NoteCount, plan.LoopDuration, len(plan.Commands))
	}

	// 3. 保存为JSON文件
	if err := sp.saveSequence(sequence, outputFile); err != nil {
		return nil, errors.Wrap(err, "保存执行序列失败")
	}

	fmt.Printf("✅ 预处理完成: %s\n", outputFile)
	return sequence, nil
}

// BuildSequence 规划乐谱并生成执行序列（不写文件）
func (sp *SchedulePreprocessor) BuildSequence(score motion.Score, sourceFile string) *ExecutionSequence {
	plans := motion.PlanScore(score, sp.params)

	total := 0
	for _, plan := range plans {
		total += len(plan.Commands)
	}

	return &ExecutionSequence{
		Meta: SequenceMeta{
			ID:              uuid.NewString(),
			SourceFile:      sourceFile,
			MaxLoopDuration: motion.MaxLoopDuration(plans),
			TotalCommands:   total,
			GeneratedAt:     time.Now(),
			Version:         ExecVersion,
		},
		Tracks: plans,
	}
}

// ExecFileName 执行序列文件名：{乐谱名}.exec.json
func ExecFileName(scoreFile string) string {
	base := filepath.Base(scoreFile)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".exec.json"
}

// saveSequence 保存执行序列到文件
func (sp *SchedulePreprocessor) saveSequence(sequence *ExecutionSequence, outputFile string) error {
	data, err := json.MarshalIndent(sequence, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化失败: %v", err)
	}

	if dir := filepath.Dir(outputFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %v", err)
		}
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %v", err)
	}

	return nil
}

// loadExecutionSequence 加载并校验执行序列文件
func loadExecutionSequence(path string) (*ExecutionSequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取文件失败 %s", path)
	}

	var sequence ExecutionSequence
	if err := json.Unmarshal(data, &sequence); err != nil {
		return nil, errors.Wrapf(err, "解析JSON失败 %s", path)
	}

	if err := sequence.Validate(); err != nil {
		return nil, errors.Wrapf(err, "执行序列无效 %s", path)
	}

	return &sequence, nil
}
