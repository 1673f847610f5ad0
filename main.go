package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

////////////////////////////////////////////////////////////////////////////////
// 主程序入口
////////////////////////////////////////////////////////////////////////////////

func main() {
	// 定义命令行参数
	var (
		inputFile  = flag.String("in", "", "输入乐谱文件路径 (例: scores/demo.json 或 scores/groove.mid)")
		outputFile = flag.String("out", "", "预处理输出文件路径 (默认: exec/{乐谱名}.exec.json)")
		execFile   = flag.String("exec", "", "执行预计算的序列文件 (例: exec/demo.exec.json)")
		preprocess = flag.Bool("preprocess", false, "预处理模式，只生成exec文件")
		configFile = flag.String("config", "config.yaml", "配置文件路径")
		loops      = flag.Int("loops", 1, "循环次数 (0表示一直循环直到停止)")
		dryRun     = flag.Bool("dry", false, "调试模式，只打印不发送指令")
		shell      = flag.Bool("shell", false, "启动交互控制台")
		help       = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *help {
		PrintUsage()
		return
	}

	// 加载配置文件
	fileReader := NewFileReader()
	cfg, err := fileReader.LoadConfigOrDefault(*configFile)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if cfg.DryRun {
		fmt.Println("🔧 调试模式：只打印不发送指令")
	}

	// 设置信号处理，收到退出信号时停止演奏（机械臂回到预备姿态后再退出）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n🛑 收到退出信号，正在停止演奏...")
		cancel()
		playbackController.StopPlayback(true, stopWaitTimeout)
		if *shell || (*inputFile == "" && *execFile == "") {
			os.Exit(0)
		}
	}()

	// 预处理模式不需要数据库
	if *preprocess {
		if *inputFile == "" {
			fmt.Println("❌ 预处理模式需要 -in 参数")
			os.Exit(1)
		}
		cli := NewCLIExecutor(cfg, nil)
		if err := cli.RunPreprocess(*inputFile, *outputFile); err != nil {
			fmt.Printf("❌ 预处理失败: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// 指令日志（打开失败时继续运行，只是不记录）
	commandLog, err := OpenCommandLog(cfg.DBPath)
	if err != nil {
		fmt.Printf("⚠️  指令日志不可用: %v\n", err)
		commandLog = nil
	} else {
		defer commandLog.Close()
	}

	switch {
	case *execFile != "":
		cli := NewCLIExecutor(cfg, commandLog)
		if err := cli.RunExecFile(ctx, *execFile, *loops); err != nil {
			fmt.Printf("❌ 播放失败: %v\n", err)
			os.Exit(1)
		}

	case *inputFile != "":
		cli := NewCLIExecutor(cfg, commandLog)
		if err := cli.RunDirectPlayback(ctx, *inputFile, *loops); err != nil {
			fmt.Printf("❌ 播放失败: %v\n", err)
			os.Exit(1)
		}

	case *shell:
		console := NewConsole(cfg, commandLog)
		if err := console.Run(); err != nil {
			fmt.Printf("❌ 控制台错误: %v\n", err)
			os.Exit(1)
		}

	default:
		// 否则启动Web服务
		webServer := NewWebServer(cfg, commandLog)
		if err := webServer.StartWebServer(); err != nil {
			os.Exit(1)
		}
	}
}
