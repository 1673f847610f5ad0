package main

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrPlaybackBusy 已有演奏正在进行
var ErrPlaybackBusy = errors.New("playback already running")

////////////////////////////////////////////////////////////////////////////////
// 演奏控制器：全局唯一，Web API 与控制台共用
////////////////////////////////////////////////////////////////////////////////

// NewPlaybackController 创建演奏控制器
func NewPlaybackController() *PlaybackController {
	return &PlaybackController{
		status: PlaybackStatus{Rate: 1.0, TrackProgress: map[string]float64{}},
	}
}

// StartPlayback 开始新的演奏，返回本次演奏的 context
func (pc *PlaybackController) StartPlayback(sequence *ExecutionSequence, rate float64) (context.Context, error) {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if pc.isRunning {
		return nil, ErrPlaybackBusy
	}
	if rate <= 0 {
		rate = 1.0
	}

	ctx, cancel := context.WithCancel(context.Background())
	pc.cancel = cancel
	pc.doneChan = make(chan struct{})
	pc.isRunning = true
	pc.startTime = time.Now()

	pc.clock = NewTransportClock(sequence.Meta.MaxLoopDuration)
	pc.clock.SetRate(rate)
	pc.clock.Start()

	pc.status = PlaybackStatus{
		IsPlaying:     true,
		CurrentFile:   sequence.Meta.SourceFile,
		Rate:          rate,
		MaxLoopSec:    sequence.Meta.MaxLoopDuration,
		TrackProgress: map[string]float64{},
	}
	for _, plan := range sequence.Tracks {
		pc.status.TrackProgress[plan.Name] = 0
	}
	pc.loopDurations = map[string]float64{}
	for _, plan := range sequence.Tracks {
		pc.loopDurations[plan.Name] = plan.LoopDuration
	}

	return ctx, nil
}

// SetRunID 登记指令日志中的演奏ID
func (pc *PlaybackController) SetRunID(runID string) {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()
	pc.status.RunID = runID
}

// RecordDispatch 每发送一条指令更新状态
func (pc *PlaybackController) RecordDispatch(track string, rec DispatchRecord) {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	pc.status.SentCommands++
	if rec.LatenessMS > lateThresholdMS {
		pc.status.LateCommands++
	}
	pc.status.MaxLatenessMS = math.Max(pc.status.MaxLatenessMS, rec.LatenessMS)
	if rec.Loop > pc.status.Loop {
		pc.status.Loop = rec.Loop
	}
	if loopDuration := pc.loopDurations[track]; loopDuration > 0 {
		progress := rec.TargetTime / loopDuration * 100
		pc.status.TrackProgress[track] = math.Max(0, math.Min(100, progress))
	}
}

// SetRate 修改传输时钟倍率
func (pc *PlaybackController) SetRate(rate float64) error {
	if rate <= 0 {
		return errors.New("rate must be positive")
	}
	pc.mutex.Lock()
	defer pc.mutex.Unlock()
	pc.status.Rate = rate
	if pc.clock != nil {
		pc.clock.SetRate(rate)
	}
	return nil
}

// StopPlayback 请求停止，wait 为 true 时等待清理完成（最多 timeout）
func (pc *PlaybackController) StopPlayback(wait bool, timeout time.Duration) bool {
	pc.mutex.Lock()
	if !pc.isRunning {
		pc.mutex.Unlock()
		return false
	}
	cancel := pc.cancel
	done := pc.doneChan
	pc.mutex.Unlock()

	cancel()

	if wait {
		select {
		case <-done:
		case <-time.After(timeout):
		}
	}
	return true
}

// MarkFinished 播放协程结束时调用
func (pc *PlaybackController) MarkFinished(err error) {
	pc.mutex.Lock()
	defer pc.mutex.Unlock()

	if !pc.isRunning {
		return
	}
	pc.isRunning = false
	pc.status.IsPlaying = false
	pc.status.ElapsedTime = time.Since(pc.startTime).Round(time.Millisecond).String()
	if err != nil && !errors.Is(err, ErrUserStopped) {
		pc.status.LastError = err.Error()
	}
	if pc.clock != nil {
		pc.clock.Stop()
	}
	if pc.cancel != nil {
		pc.cancel()
	}
	close(pc.doneChan)
}

// IsRunning 是否正在演奏
func (pc *PlaybackController) IsRunning() bool {
	pc.mutex.RLock()
	defer pc.mutex.RUnlock()
	return pc.isRunning
}

// Status 当前状态快照（含传输时钟位置）
func (pc *PlaybackController) Status() PlaybackStatus {
	pc.mutex.RLock()
	defer pc.mutex.RUnlock()

	status := pc.status
	status.TrackProgress = make(map[string]float64, len(pc.status.TrackProgress))
	for k, v := range pc.status.TrackProgress {
		status.TrackProgress[k] = v
	}
	if pc.isRunning {
		status.ElapsedTime = time.Since(pc.startTime).Round(time.Second).String()
	}
	if pc.clock != nil {
		status.CurrentTime = pc.clock.Now()
		status.Rate = pc.clock.Rate()
		status.MaxLoopSec = pc.clock.MaxLoop()
	}
	return status
}
