package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"drumbot/motion"
)

// 特殊错误：用户停止播放
var ErrUserStopped = errors.New("user stopped playback")

// 迟发超过该值计入 late_commands
const lateThresholdMS = 10.0

////////////////////////////////////////////////////////////////////////////////
// 执行引擎 - 按发送时间把执行序列送到机械臂
////////////////////////////////////////////////////////////////////////////////

// dispatchClock 调度使用的时钟（测试时替换为假时钟）
type dispatchClock interface {
	Now() time.Time
	SleepUntil(ctx context.Context, t time.Time) error
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// SleepUntil 可被 ctx 立即打断的等待
func (wallClock) SleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueuedCommand 某一轮循环中待发送的指令
type QueuedCommand struct {
	motion.MotionCommand
	Loop   int     // 循环轮次
	Offset float64 // 相对调度原点的发送偏移（秒）= loop·loopDuration + sendTime
}

// DispatchQueue 第 loop 轮的发送队列，按发送时间排序（同一时间保持目标时间顺序）
func DispatchQueue(schedule motion.Schedule, loopDuration float64, loop int) []QueuedCommand {
	queue := make([]QueuedCommand, len(schedule))
	base := float64(loop) * loopDuration
	for i, cmd := range schedule {
		queue[i] = QueuedCommand{MotionCommand: cmd, Loop: loop, Offset: base + cmd.SendTime}
	}
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].SendTime < queue[j].SendTime
	})
	return queue
}

// dispatchStream 跨循环边界按发送偏移依次取出指令
//
// 下一轮开头的负发送时间落在本轮末尾，所以在本轮剩余指令之前
// 先把下一轮并入待发队列。
type dispatchStream struct {
	schedule     motion.Schedule
	loopDuration float64
	loops        int // 0 表示无限
	next         int // 下一个尚未并入的轮次
	earliest     float64
	pending      []QueuedCommand
}

func newDispatchStream(schedule motion.Schedule, loopDuration float64, loops int) *dispatchStream {
	s := &dispatchStream{schedule: schedule, loopDuration: loopDuration, loops: loops}
	if len(schedule) > 0 {
		s.earliest = DispatchQueue(schedule, loopDuration, 0)[0].SendTime
	}
	return s
}

// Next 返回下一条待发送指令，全部发完时 ok 为 false
func (s *dispatchStream) Next() (queued QueuedCommand, ok bool) {
	for len(s.schedule) > 0 && (s.loops == 0 || s.next < s.loops) {
		start := float64(s.next)*s.loopDuration + s.earliest
		if len(s.pending) > 0 && s.pending[0].Offset <= start {
			break
		}
		s.pending = mergeByOffset(s.pending, DispatchQueue(s.schedule, s.loopDuration, s.next))
		s.next++
	}
	if len(s.pending) == 0 {
		return QueuedCommand{}, false
	}
	queued = s.pending[0]
	s.pending = s.pending[1:]
	return queued, true
}

// mergeByOffset 合并两个按偏移排序的队列，偏移相同时 a 在前
func mergeByOffset(a, b []QueuedCommand) []QueuedCommand {
	out := make([]QueuedCommand, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Offset < a[i].Offset {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// DispatchStats 发送统计
type DispatchStats struct {
	Sent          int
	Late          int
	Failed        int
	MaxLatenessMS float64
}

// ExecutionEngine 执行引擎
type ExecutionEngine struct {
	sequence *ExecutionSequence
	cfg      Config
	sender   ActuatorSender
	encoder  *CommandEncoder
	ready    *ReadyPoseController
	log      *CommandLog
	runID    string
	clock    dispatchClock

	mu         sync.Mutex
	stats      DispatchStats
	onDispatch func(track string, rec DispatchRecord) // 每次发送后回调（更新演奏状态）
}

// NewExecutionEngine 创建新的执行引擎
func NewExecutionEngine(sequence *ExecutionSequence, cfg Config, sender ActuatorSender) *ExecutionEngine {
	encoder := NewCommandEncoder(cfg.Safety)
	return &ExecutionEngine{
		sequence: sequence,
		cfg:      cfg,
		sender:   sender,
		encoder:  encoder,
		ready:    NewReadyPoseController(encoder),
		clock:    wallClock{},
	}
}

// LoadExecutionEngine 从执行序列文件创建执行引擎
func LoadExecutionEngine(sequenceFile string, cfg Config, sender ActuatorSender) (*ExecutionEngine, error) {
	sequence, err := loadExecutionSequence(sequenceFile)
	if err != nil {
		return nil, fmt.Errorf("加载执行序列失败: %w", err)
	}
	return NewExecutionEngine(sequence, cfg, sender), nil
}

// SetCommandLog 启用指令日志
func (ee *ExecutionEngine) SetCommandLog(log *CommandLog) {
	ee.log = log
}

// RunID 本次演奏ID（未启用指令日志时为空）
func (ee *ExecutionEngine) RunID() string { return ee.runID }

// Stats 当前发送统计
func (ee *ExecutionEngine) Stats() DispatchStats {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	return ee.stats
}

// beginRun 在指令日志中登记本次演奏
func (ee *ExecutionEngine) beginRun() error {
	if ee.log == nil || ee.runID != "" {
		return nil
	}
	runID, err := ee.log.BeginRun(ee.sequence.Meta.SourceFile)
	if err != nil {
		return err
	}
	ee.runID = runID
	return nil
}

func (ee *ExecutionEngine) finishRun(err error) {
	if ee.log == nil || ee.runID == "" {
		return
	}
	status := RunStatusFinished
	switch {
	case errors.Is(err, ErrUserStopped):
		status = RunStatusStopped
	case err != nil:
		status = RunStatusFailed
	}
	if ferr := ee.log.FinishRun(ee.runID, status); ferr != nil {
		fmt.Printf("⚠️  %v\n", ferr)
	}
}

// Preroll 第一轮前的准备时间：至少覆盖最早（负）的发送时间
func (ee *ExecutionEngine) Preroll() float64 {
	minSend := 0.0
	for _, plan := range ee.sequence.Tracks {
		minSend = math.Min(minSend, plan.Commands.MinSendTime())
	}
	return math.Max(ee.cfg.PrerollS, -minSend)
}

// Play 执行播放（使用 context 控制），loops = 0 表示一直循环直到取消
func (ee *ExecutionEngine) Play(ctx context.Context, loops int) (err error) {
	if err := ee.beginRun(); err != nil {
		return err
	}
	defer func() { ee.finishRun(err) }()

	fmt.Printf("🎵 开始执行播放\n")
	fmt.Printf("   文件: %s\n", ee.sequence.Meta.SourceFile)
	for _, plan := range ee.sequence.Tracks {
		fmt.Printf("   [%s] BPM: %.1f, 循环: %.2fs, 指令: %d\n", plan.Name, plan.BPM, plan.LoopDuration, len(plan.Commands))
	}
	if loops > 0 {
		fmt.Printf("   循环次数: %d\n", loops)
	} else {
		fmt.Printf("   循环次数: 无限（直到停止）\n")
	}

	if ee.cfg.Ready.Enabled {
		ee.ready.MoveAll(ee.cfg, ee.sender)
		// 无论正常结束还是停止都回到预备姿态
		defer ee.ready.MoveAll(ee.cfg, ee.sender)
		if err := ee.clock.SleepUntil(ctx, ee.clock.Now().Add(time.Duration(ee.cfg.Ready.HoldMS)*time.Millisecond)); err != nil {
			return ErrUserStopped
		}
	}

	startTime := ee.clock.Now()
	origin := startTime.Add(seconds(ee.Preroll()))

	// 每条音轨一个调度协程
	var wg sync.WaitGroup
	for _, plan := range ee.sequence.Tracks {
		robot, ok := ee.cfg.Robot(plan.Name)
		if !ok {
			fmt.Printf("⚠️  警告: 未知的音轨: %s，跳过\n", plan.Name)
			continue
		}
		wg.Add(1)
		go func(plan motion.TrackPlan, robot RobotConfig) {
			defer wg.Done()
			ee.runTrack(ctx, plan, robot, origin, loops)
		}(plan, robot)
	}
	wg.Wait()

	stats := ee.Stats()
	fmt.Printf("✅ 播放结束\n")
	fmt.Printf("   实际时长: %.2fs\n", ee.clock.Now().Sub(startTime).Seconds())
	fmt.Printf("   已发送: %d, 迟发: %d, 失败: %d, 最大迟发: %.1fms\n",
		stats.Sent, stats.Late, stats.Failed, stats.MaxLatenessMS)

	if ctx.Err() != nil {
		return ErrUserStopped
	}
	return nil
}

// runTrack 单条音轨的调度循环
func (ee *ExecutionEngine) runTrack(ctx context.Context, plan motion.TrackPlan, robot RobotConfig, origin time.Time, loops int) {
	if len(plan.Commands) == 0 {
		// 空音轨没有可发送的指令；无限循环时等待停止
		if loops == 0 {
			<-ctx.Done()
		}
		return
	}

	stream := newDispatchStream(plan.Commands, plan.LoopDuration, loops)
	for {
		queued, ok := stream.Next()
		if !ok {
			return
		}
		at := origin.Add(seconds(queued.Offset))
		if err := ee.clock.SleepUntil(ctx, at); err != nil {
			return
		}
		ee.dispatch(plan.Name, robot, queued, ee.clock.Now().Sub(at))
	}
}

// dispatch 发送一条指令并记录
func (ee *ExecutionEngine) dispatch(track string, robot RobotConfig, queued QueuedCommand, lateness time.Duration) {
	move := ee.encoder.Encode(track, robot, queued.MotionCommand)
	sendErr := ee.sender.Send(move)

	latenessMS := math.Max(0, float64(lateness)/float64(time.Millisecond))
	rec := DispatchRecord{
		RunID:        ee.runID,
		Track:        track,
		Loop:         queued.Loop,
		Action:       string(queued.Action),
		TargetTime:   queued.TargetTime,
		SendTime:     queued.SendTime,
		PositionZ:    move.Pose.Z,
		Velocity:     move.Velocity,
		Acceleration: move.Acceleration,
		LatenessMS:   latenessMS,
	}

	ee.mu.Lock()
	if sendErr != nil {
		ee.stats.Failed++
	} else {
		ee.stats.Sent++
	}
	if latenessMS > lateThresholdMS {
		ee.stats.Late++
	}
	ee.stats.MaxLatenessMS = math.Max(ee.stats.MaxLatenessMS, latenessMS)
	callback := ee.onDispatch
	ee.mu.Unlock()

	if sendErr != nil {
		fmt.Printf("❌ [%s] 发送失败: %v\n", track, sendErr)
		return
	}

	if ee.log != nil {
		if err := ee.log.Record(rec); err != nil {
			fmt.Printf("⚠️  %v\n", err)
		}
	}
	if callback != nil {
		callback(track, rec)
	}
}

// PlayAsync 异步执行播放（用于Web API和控制台）
func (ee *ExecutionEngine) PlayAsync(loops int, rate float64) error {
	// 创建新的播放上下文（正在演奏时返回 ErrPlaybackBusy）
	ctx, err := playbackController.StartPlayback(ee.sequence, rate)
	if err != nil {
		return err
	}

	if err := ee.beginRun(); err != nil {
		playbackController.MarkFinished(err)
		return err
	}
	playbackController.SetRunID(ee.runID)
	ee.onDispatch = playbackController.RecordDispatch

	// 异步播放
	go func() {
		var err error
		// 统一的资源清理（无论正常还是停止）
		defer func() {
			ee.cleanup(err)
		}()

		err = ee.Play(ctx, loops)
		if err != nil {
			if errors.Is(err, ErrUserStopped) {
				fmt.Printf("⏹️  播放已被用户停止\n")
			} else {
				fmt.Printf("❌ 播放出错: %v\n", err)
			}
		}
	}()

	return nil
}

// cleanup 统一的资源清理函数
func (ee *ExecutionEngine) cleanup(err error) {
	fmt.Println("🧹 开始资源清理...")

	// 1. 关闭执行器
	if err := ee.sender.Close(); err != nil {
		fmt.Printf("⚠️  关闭执行器失败: %v\n", err)
	}

	// 2. 标记播放完成
	playbackController.MarkFinished(err)

	fmt.Println("✅ 资源清理完成")
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
