package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
)

////////////////////////////////////////////////////////////////////////////////
// 命令行执行模块
////////////////////////////////////////////////////////////////////////////////

// CLIExecutor 命令行执行器
type CLIExecutor struct {
	cfg          Config
	fileReader   *FileReader
	preprocessor *SchedulePreprocessor
	commandLog   *CommandLog
}

// NewCLIExecutor 创建新的命令行执行器
func NewCLIExecutor(cfg Config, commandLog *CommandLog) *CLIExecutor {
	return &CLIExecutor{
		cfg:          cfg,
		fileReader:   NewFileReader(),
		preprocessor: NewSchedulePreprocessor(),
		commandLog:   commandLog,
	}
}

// PrintUsage 打印使用说明
func PrintUsage() {
	fmt.Println("🥁 双臂鼓机器人控制系统")
	fmt.Println("\n用法:")
	fmt.Println("  1. 执行预计算序列:")
	fmt.Println("    ./drumbot -exec exec/demo.exec.json -loops 4")
	fmt.Println("\n  2. 预处理模式（生成exec文件）:")
	fmt.Println("    ./drumbot -preprocess -in scores/demo.json")
	fmt.Println("    → 自动生成: exec/demo.exec.json")
	fmt.Println("\n  3. 自动预处理+执行模式（一步到位）:")
	fmt.Println("    ./drumbot -in scores/demo.json -loops 8")
	fmt.Println("    ./drumbot -in scores/groove.mid -dry")
	fmt.Println("\n  4. 交互控制台:")
	fmt.Println("    ./drumbot -shell")
	fmt.Println("\n  5. Web服务模式:")
	fmt.Println("    ./drumbot")
	fmt.Println("    ./drumbot -config config.yaml")
	fmt.Println("\n参数说明:")
	flag.PrintDefaults()
	fmt.Println("\n文件命名规则:")
	fmt.Println("  格式: exec/{乐谱文件名}.exec.json")
	fmt.Println("  -loops 0 表示一直循环，按 Ctrl+C 停止")
}

// RunPreprocess 只生成执行序列文件
func (cli *CLIExecutor) RunPreprocess(inputFile, outputFile string) error {
	if err := cli.fileReader.CheckFileExists(inputFile); err != nil {
		return err
	}
	if outputFile == "" {
		outputFile = filepath.Join(cli.cfg.ExecDir, ExecFileName(inputFile))
	}
	_, err := cli.preprocessor.GenerateExecutionSequence(inputFile, outputFile)
	return err
}

// RunDirectPlayback 预处理并立即演奏（不写exec文件）
func (cli *CLIExecutor) RunDirectPlayback(ctx context.Context, inputFile string, loops int) error {
	if err := cli.fileReader.CheckFileExists(inputFile); err != nil {
		return err
	}
	score, err := cli.fileReader.LoadScore(inputFile)
	if err != nil {
		return err
	}
	sequence := cli.preprocessor.BuildSequence(score, filepath.Base(inputFile))
	return cli.play(ctx, sequence, loops)
}

// RunExecFile 演奏预计算的执行序列文件
func (cli *CLIExecutor) RunExecFile(ctx context.Context, execFile string, loops int) error {
	if err := cli.fileReader.CheckFileExists(execFile); err != nil {
		return err
	}
	sequence, err := loadExecutionSequence(execFile)
	if err != nil {
		return err
	}
	return cli.play(ctx, sequence, loops)
}

func (cli *CLIExecutor) play(ctx context.Context, sequence *ExecutionSequence, loops int) error {
	sender, err := NewActuatorSender(cli.cfg)
	if err != nil {
		return err
	}
	defer sender.Close()

	engine := NewExecutionEngine(sequence, cli.cfg, sender)
	if cli.commandLog != nil {
		engine.SetCommandLog(cli.commandLog)
	}

	err = engine.Play(ctx, loops)
	if errors.Is(err, ErrUserStopped) {
		fmt.Printf("⏹️  播放已被用户停止\n")
		return nil
	}
	return err
}
