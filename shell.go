package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"drumbot/motion"
)

////////////////////////////////////////////////////////////////////////////////
// 交互控制台
////////////////////////////////////////////////////////////////////////////////

// Console 交互控制台，演奏在后台进行，与Web服务共用演奏控制器
type Console struct {
	cfg          Config
	fileReader   *FileReader
	scoreScanner *ScoreFileScanner
	preprocessor *SchedulePreprocessor
	commandLog   *CommandLog
	out          io.Writer
	newSender    func(Config) (ActuatorSender, error)
}

// NewConsole 创建交互控制台
func NewConsole(cfg Config, commandLog *CommandLog) *Console {
	return &Console{
		cfg:          cfg,
		fileReader:   NewFileReader(),
		scoreScanner: NewScoreFileScanner(),
		preprocessor: NewSchedulePreprocessor(),
		commandLog:   commandLog,
		out:          os.Stdout,
		newSender:    NewActuatorSender,
	}
}

// Run 读取并执行命令直到 exit 或 Ctrl+D
func (con *Console) Run() error {
	historyFile := filepath.Join(os.TempDir(), ".drumbot_history")
	config := &readline.Config{
		Prompt:       "drumbot> ",
		HistoryFile:  historyFile,
		AutoComplete: con.completer(),
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("初始化readline失败: %v", err)
	}
	defer rl.Close()
	con.out = rl.Stdout()

	fmt.Fprintln(con.out, "🥁 双臂鼓机器人控制台，输入 help 查看命令")

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				break
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if !con.handleCommand(input) {
			break
		}
	}

	playbackController.StopPlayback(true, stopWaitTimeout)
	fmt.Fprintln(con.out, "👋 已退出控制台")
	return nil
}

func (con *Console) completer() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		readline.PcItem("plan"),
		readline.PcItem("show",
			readline.PcItem(TrackTop),
			readline.PcItem(TrackBottom),
		),
		readline.PcItem("preprocess"),
		readline.PcItem("play"),
		readline.PcItem("stop"),
		readline.PcItem("rate"),
		readline.PcItem("status"),
		readline.PcItem("runs"),
		readline.PcItem("arms"),
		readline.PcItem("home"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// handleCommand 执行一条命令，返回 false 表示退出
func (con *Console) handleCommand(input string) bool {
	parts := strings.Fields(input)
	command, args := parts[0], parts[1:]

	var err error
	switch command {
	case "list", "ls":
		err = con.cmdList(args)
	case "plan":
		err = con.cmdPlan(args)
	case "show":
		err = con.cmdShow(args)
	case "preprocess":
		err = con.cmdPreprocess(args)
	case "play":
		err = con.cmdPlay(args)
	case "stop":
		if playbackController.StopPlayback(true, stopWaitTimeout) {
			fmt.Fprintln(con.out, "⏹️  演奏已停止")
		} else {
			fmt.Fprintln(con.out, "当前没有演奏在进行")
		}
	case "rate":
		err = con.cmdRate(args)
	case "status":
		con.cmdStatus()
	case "runs":
		err = con.cmdRuns(args)
	case "arms":
		err = con.withArms(con.printArmStatus)
	case "home":
		err = con.withArms(func(arms ArmInspector) error { return arms.Home() })
	case "help", "?":
		con.printHelp()
	case "exit", "quit", "q":
		return false
	default:
		fmt.Fprintf(con.out, "未知命令: %s（输入 help 查看命令）\n", command)
	}

	if err != nil {
		fmt.Fprintf(con.out, "❌ %v\n", err)
	}
	return true
}

func (con *Console) printHelp() {
	fmt.Fprintln(con.out, "命令:")
	fmt.Fprintln(con.out, "  list [关键词]          列出乐谱文件")
	fmt.Fprintln(con.out, "  plan <文件>            显示各音轨规划概要")
	fmt.Fprintln(con.out, "  show <文件> [音轨]     显示动作指令（top / bottom）")
	fmt.Fprintln(con.out, "  preprocess <文件>      生成 exec 文件")
	fmt.Fprintln(con.out, "  play <文件> [循环次数]  后台演奏（0 表示一直循环）")
	fmt.Fprintln(con.out, "  stop                   停止演奏")
	fmt.Fprintln(con.out, "  rate <倍率>            修改传输时钟倍率")
	fmt.Fprintln(con.out, "  status                 演奏状态")
	fmt.Fprintln(con.out, "  runs [数量]            最近的演奏记录")
	fmt.Fprintln(con.out, "  arms                   查询机械臂状态（串口）")
	fmt.Fprintln(con.out, "  home                   机械臂回原点（串口）")
	fmt.Fprintln(con.out, "  exit                   退出")
}

// scorePath 直接给出的路径优先，否则在乐谱目录中查找
func (con *Console) scorePath(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}
	return SafeJoin(con.cfg.ScoreDir, name)
}

func (con *Console) loadScore(args []string) (motion.Score, string, error) {
	if len(args) == 0 {
		return motion.Score{}, "", fmt.Errorf("缺少乐谱文件名")
	}
	fpath, err := con.scorePath(args[0])
	if err != nil {
		return motion.Score{}, "", err
	}
	score, err := con.fileReader.LoadScore(fpath)
	return score, fpath, err
}

func (con *Console) cmdList(args []string) error {
	search := ""
	if len(args) > 0 {
		search = args[0]
	}
	files, err := con.scoreScanner.ScanScoreFiles(con.cfg.ScoreDir, search)
	if err != nil {
		return err
	}
	for _, file := range files {
		if file.InvalidError != "" {
			fmt.Fprintf(con.out, "  ⚠️  %-28s %s\n", file.Filename, file.InvalidError)
			continue
		}
		fmt.Fprintf(con.out, "  %-30s %-4s 循环 %.2fs\n", file.Filename, file.Format, file.MaxLoopSec)
	}
	fmt.Fprintf(con.out, "共 %d 个文件\n", len(files))
	return nil
}

func (con *Console) cmdPlan(args []string) error {
	score, fpath, err := con.loadScore(args)
	if err != nil {
		return err
	}
	sequence := con.preprocessor.BuildSequence(score, filepath.Base(fpath))
	for _, plan := range sequence.Tracks {
		fmt.Fprintf(con.out, "  [%s] BPM %.1f, 音符 %d, 循环 %.3fs, 指令 %d, 最早发送 %.3fs\n",
			plan.Name, plan.BPM, plan.NoteCount, plan.LoopDuration, len(plan.Commands), plan.Commands.MinSendTime())
	}
	fmt.Fprintf(con.out, "  最长循环 %.3fs, 指令合计 %d\n", sequence.Meta.MaxLoopDuration, sequence.Meta.TotalCommands)
	return nil
}

func (con *Console) cmdShow(args []string) error {
	score, fpath, err := con.loadScore(args)
	if err != nil {
		return err
	}
	only := ""
	if len(args) > 1 {
		only = args[1]
	}

	sequence := con.preprocessor.BuildSequence(score, filepath.Base(fpath))
	for _, plan := range sequence.Tracks {
		if only != "" && plan.Name != only {
			continue
		}
		fmt.Fprintf(con.out, "[%s]\n", plan.Name)
		fmt.Fprintf(con.out, "  %9s %-8s %8s %8s %8s %9s\n", "target", "action", "z", "v", "a", "send")
		for _, cmd := range plan.Commands {
			fmt.Fprintf(con.out, "  %9.4f %-8s %8.2f %8.2f %8.2f %9.4f\n",
				cmd.TargetTime, cmd.Action, cmd.PositionZ, cmd.Velocity, cmd.Acceleration, cmd.SendTime)
		}
	}
	return nil
}

func (con *Console) cmdPreprocess(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("缺少乐谱文件名")
	}
	fpath, err := con.scorePath(args[0])
	if err != nil {
		return err
	}
	_, err = con.preprocessor.GenerateExecutionSequence(fpath, filepath.Join(con.cfg.ExecDir, ExecFileName(fpath)))
	return err
}

func (con *Console) cmdPlay(args []string) error {
	score, fpath, err := con.loadScore(args)
	if err != nil {
		return err
	}
	loops := 1
	if len(args) > 1 {
		loops, err = strconv.Atoi(args[1])
		if err != nil || loops < 0 {
			return fmt.Errorf("无效的循环次数: %s", args[1])
		}
	}

	sender, err := con.newSender(con.cfg)
	if err != nil {
		return err
	}

	engine := NewExecutionEngine(con.preprocessor.BuildSequence(score, filepath.Base(fpath)), con.cfg, sender)
	if con.commandLog != nil {
		engine.SetCommandLog(con.commandLog)
	}
	if err := engine.PlayAsync(loops, 1.0); err != nil {
		sender.Close()
		return err
	}
	fmt.Fprintf(con.out, "▶️  开始演奏 %s（run %s）\n", filepath.Base(fpath), engine.RunID())
	return nil
}

func (con *Console) cmdRate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("缺少倍率")
	}
	rate, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("无效的倍率: %s", args[0])
	}
	return playbackController.SetRate(rate)
}

func (con *Console) cmdStatus() {
	status := playbackController.Status()
	if !status.IsPlaying {
		fmt.Fprintf(con.out, "⏸  未在演奏（上次: %s, 已发送 %d 条）\n", status.CurrentFile, status.SentCommands)
		if status.LastError != "" {
			fmt.Fprintf(con.out, "   最后错误: %s\n", status.LastError)
		}
		return
	}
	fmt.Fprintf(con.out, "▶️  %s 第 %d 轮, 已发送 %d 条, 迟发 %d 条 (最大 %.1fms)\n",
		status.CurrentFile, status.Loop+1, status.SentCommands, status.LateCommands, status.MaxLatenessMS)
	fmt.Fprintf(con.out, "   传输时钟 %.3f / %.3fs ×%.2f, 已播放 %s\n",
		status.CurrentTime, status.MaxLoopSec, status.Rate, status.ElapsedTime)
	for _, track := range []string{TrackTop, TrackBottom} {
		if progress, ok := status.TrackProgress[track]; ok {
			fmt.Fprintf(con.out, "   [%s] %.0f%%\n", track, progress)
		}
	}
}

func (con *Console) cmdRuns(args []string) error {
	if con.commandLog == nil {
		return fmt.Errorf("指令日志未启用")
	}
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}
	runs, err := con.commandLog.ListRuns(limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Fprintf(con.out, "  %s  %-9s %s  %s\n", run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"), run.SourceFile)
	}
	return nil
}

// withArms 没有演奏时临时连接机械臂（演奏中串口被占用）
func (con *Console) withArms(fn func(ArmInspector) error) error {
	if playbackController.IsRunning() {
		return ErrPlaybackBusy
	}
	sender, err := con.newSender(con.cfg)
	if err != nil {
		return err
	}
	defer sender.Close()

	arms, ok := sender.(ArmInspector)
	if !ok {
		return fmt.Errorf("当前执行器不能直接访问机械臂（仅串口模式）")
	}
	return fn(arms)
}

func (con *Console) printArmStatus(arms ArmInspector) error {
	statuses, err := arms.ArmStatus()
	if err != nil {
		return err
	}
	for _, track := range []string{TrackTop, TrackBottom} {
		status, ok := statuses[track]
		if !ok {
			fmt.Fprintf(con.out, "  [%s] 未连接\n", track)
			continue
		}
		fmt.Fprintf(con.out, "  [%s] 状态 %s, 位姿 %s, 速度 %s\n", track, status["state"], status["pose"], status["speed"])
	}
	return nil
}
