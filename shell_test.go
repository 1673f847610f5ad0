package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeArmSender 带机械臂状态查询的记录执行器
type fakeArmSender struct {
	*recordingSender
	statuses map[string]map[string]string
	homed    int
}

func (f *fakeArmSender) ArmStatus() (map[string]map[string]string, error) { return f.statuses, nil }

func (f *fakeArmSender) Home() error {
	f.homed++
	return nil
}

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer, *recordingSender) {
	t.Helper()

	dir := t.TempDir()
	cfg := testConfig()
	cfg.ScoreDir = filepath.Join(dir, "scores")
	cfg.ExecDir = filepath.Join(dir, "exec")
	if err := os.MkdirAll(cfg.ScoreDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, cfg.ScoreDir, "demo.json", demoScoreJSON)
	writeFile(t, cfg.ScoreDir, "fast.json", `{"top": {"bpm": 600, "total_beats": 1, "items": [{"class": "note", "beat": 0}]}}`)

	log, err := OpenCommandLog(filepath.Join(dir, "drumbot.db"))
	if err != nil {
		t.Fatalf("OpenCommandLog: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	var out bytes.Buffer
	sender := &recordingSender{}
	con := NewConsole(cfg, log)
	con.out = &out
	con.newSender = func(Config) (ActuatorSender, error) { return sender, nil }
	return con, &out, sender
}

// runCommand 执行一条命令并返回输出
func runCommand(t *testing.T, con *Console, out *bytes.Buffer, input string) string {
	t.Helper()
	out.Reset()
	if !con.handleCommand(input) {
		t.Fatalf("%q exited the console", input)
	}
	return out.String()
}

func TestConsoleList(t *testing.T) {
	con, out, _ := newTestConsole(t)

	got := runCommand(t, con, out, "list")
	if !strings.Contains(got, "demo.json") || !strings.Contains(got, "fast.json") || !strings.Contains(got, "共 2 个文件") {
		t.Fatalf("list output:\n%s", got)
	}
	if got := runCommand(t, con, out, "ls fast"); strings.Contains(got, "demo.json") || !strings.Contains(got, "共 1 个文件") {
		t.Fatalf("ls fast output:\n%s", got)
	}
}

func TestConsolePlanAndShow(t *testing.T) {
	con, out, _ := newTestConsole(t)

	got := runCommand(t, con, out, "plan demo.json")
	if !strings.Contains(got, "[top] BPM 120.0, 音符 8") || !strings.Contains(got, "[bottom] BPM 90.0, 音符 2") {
		t.Fatalf("plan output:\n%s", got)
	}
	if !strings.Contains(got, "最长循环 4.000s, 指令合计 20") {
		t.Fatalf("plan totals:\n%s", got)
	}

	got = runCommand(t, con, out, "show demo.json")
	if !strings.Contains(got, "[top]") || !strings.Contains(got, "[bottom]") {
		t.Fatalf("show output:\n%s", got)
	}
	// top 16 条 + bottom 4 条
	if n := strings.Count(got, "strike") + strings.Count(got, "upstroke"); n != 20 {
		t.Fatalf("show printed %d commands, want 20", n)
	}

	got = runCommand(t, con, out, "show demo.json bottom")
	if strings.Contains(got, "[top]") || !strings.Contains(got, "[bottom]") {
		t.Fatalf("show bottom output:\n%s", got)
	}
	if n := strings.Count(got, "strike"); n != 2 {
		t.Fatalf("show bottom printed %d strikes, want 2", n)
	}
}

func TestConsoleErrors(t *testing.T) {
	con, out, _ := newTestConsole(t)

	tests := []struct {
		input string
		want  string
	}{
		{"plan", "缺少乐谱文件名"},
		{"plan missing.json", "❌"},
		{"show ../../etc/passwd", "❌"},
		{"play demo.json abc", "无效的循环次数: abc"},
		{"play demo.json -1", "无效的循环次数: -1"},
		{"rate", "缺少倍率"},
		{"rate fast", "无效的倍率: fast"},
		{"rate 0", "rate must be positive"},
		{"rate -2", "rate must be positive"},
		{"bogus", "未知命令: bogus"},
		{"stop", "当前没有演奏在进行"},
	}
	for _, tt := range tests {
		if got := runCommand(t, con, out, tt.input); !strings.Contains(got, tt.want) {
			t.Errorf("%q output = %q, want %q", tt.input, got, tt.want)
		}
	}
	if playbackController.IsRunning() {
		t.Fatal("invalid play started playback")
	}
}

func TestConsoleExit(t *testing.T) {
	con, _, _ := newTestConsole(t)

	for _, input := range []string{"exit", "quit", "q"} {
		if con.handleCommand(input) {
			t.Errorf("%q should exit", input)
		}
	}
	if !con.handleCommand("help") {
		t.Fatal("help should not exit")
	}
}

func TestConsolePreprocess(t *testing.T) {
	con, out, _ := newTestConsole(t)

	if got := runCommand(t, con, out, "preprocess demo.json"); strings.Contains(got, "❌") {
		t.Fatalf("preprocess output:\n%s", got)
	}
	if _, err := loadExecutionSequence(filepath.Join(con.cfg.ExecDir, "demo.exec.json")); err != nil {
		t.Fatalf("exec file: %v", err)
	}
}

func TestConsolePlayStatusStop(t *testing.T) {
	con, out, sender := newTestConsole(t)
	defer playbackController.StopPlayback(true, stopWaitTimeout)

	if got := runCommand(t, con, out, "play fast.json 0"); !strings.Contains(got, "开始演奏 fast.json") {
		t.Fatalf("play output:\n%s", got)
	}
	// 被拒绝的演奏会关闭自己的执行器，不能影响正在演奏的那个
	con.newSender = func(Config) (ActuatorSender, error) { return &recordingSender{}, nil }
	if got := runCommand(t, con, out, "play fast.json"); !strings.Contains(got, ErrPlaybackBusy.Error()) {
		t.Fatalf("second play output:\n%s", got)
	}
	if got := runCommand(t, con, out, "arms"); !strings.Contains(got, ErrPlaybackBusy.Error()) {
		t.Fatalf("arms during playback:\n%s", got)
	}

	runCommand(t, con, out, "rate 2")
	got := runCommand(t, con, out, "status")
	if !strings.Contains(got, "fast.json") || !strings.Contains(got, "×2.00") {
		t.Fatalf("status output:\n%s", got)
	}

	if got := runCommand(t, con, out, "stop"); !strings.Contains(got, "演奏已停止") {
		t.Fatalf("stop output:\n%s", got)
	}
	if playbackController.IsRunning() {
		t.Fatal("still running after stop")
	}
	sender.mu.Lock()
	closed := sender.closed
	sender.mu.Unlock()
	if !closed {
		t.Fatal("sender not closed after stop")
	}

	if got := runCommand(t, con, out, "status"); !strings.Contains(got, "未在演奏") {
		t.Fatalf("status after stop:\n%s", got)
	}
	if got := runCommand(t, con, out, "runs"); !strings.Contains(got, string(RunStatusStopped)) || !strings.Contains(got, "fast.json") {
		t.Fatalf("runs output:\n%s", got)
	}
}

func TestConsoleArms(t *testing.T) {
	con, out, _ := newTestConsole(t)

	// 调试执行器不能直接访问机械臂
	if got := runCommand(t, con, out, "arms"); !strings.Contains(got, "仅串口模式") {
		t.Fatalf("arms with dry sender:\n%s", got)
	}

	arms := &fakeArmSender{
		recordingSender: &recordingSender{},
		statuses:        map[string]map[string]string{TrackTop: {"state": "idle", "pose": "226,0,60,0", "speed": "200 200"}},
	}
	con.newSender = func(Config) (ActuatorSender, error) { return arms, nil }

	got := runCommand(t, con, out, "arms")
	if !strings.Contains(got, "[top] 状态 idle, 位姿 226,0,60,0, 速度 200 200") || !strings.Contains(got, "[bottom] 未连接") {
		t.Fatalf("arms output:\n%s", got)
	}
	if !arms.closed {
		t.Fatal("arms should close the sender")
	}

	runCommand(t, con, out, "home")
	if arms.homed != 1 {
		t.Fatalf("homed = %d, want 1", arms.homed)
	}
}

func TestConsoleRunsWithoutLog(t *testing.T) {
	con, out, _ := newTestConsole(t)
	con.commandLog = nil

	if got := runCommand(t, con, out, "runs"); !strings.Contains(got, "指令日志未启用") {
		t.Fatalf("runs output:\n%s", got)
	}
}
