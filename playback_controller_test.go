package main

import (
	"errors"
	"testing"
	"time"

	"drumbot/motion"
)

func TestPlaybackControllerLifecycle(t *testing.T) {
	pc := NewPlaybackController()
	seq := &ExecutionSequence{
		Meta: SequenceMeta{SourceFile: "demo.json", MaxLoopDuration: 4},
		Tracks: []motion.TrackPlan{
			{Name: TrackTop, LoopDuration: 4},
			{Name: TrackBottom, LoopDuration: 2},
		},
	}

	ctx, err := pc.StartPlayback(seq, 0)
	if err != nil {
		t.Fatalf("StartPlayback: %v", err)
	}
	if _, err := pc.StartPlayback(seq, 1); !errors.Is(err, ErrPlaybackBusy) {
		t.Fatalf("second start err = %v, want ErrPlaybackBusy", err)
	}

	pc.SetRunID("run-1")
	pc.RecordDispatch(TrackTop, DispatchRecord{Loop: 0, TargetTime: 1, LatenessMS: 3})
	pc.RecordDispatch(TrackBottom, DispatchRecord{Loop: 1, TargetTime: 1.5, LatenessMS: 25})

	status := pc.Status()
	if !status.IsPlaying || status.RunID != "run-1" || status.Rate != 1 {
		t.Fatalf("status = %+v", status)
	}
	if status.SentCommands != 2 || status.LateCommands != 1 || status.MaxLatenessMS != 25 || status.Loop != 1 {
		t.Fatalf("counters = %+v", status)
	}
	if status.TrackProgress[TrackTop] != 25 || status.TrackProgress[TrackBottom] != 75 {
		t.Fatalf("progress = %v", status.TrackProgress)
	}
	if status.MaxLoopSec != 4 || status.CurrentTime < 0 || status.CurrentTime >= 4 {
		t.Fatalf("transport = %v / %v", status.CurrentTime, status.MaxLoopSec)
	}

	if err := pc.SetRate(0); err == nil {
		t.Fatal("SetRate(0) accepted")
	}
	if err := pc.SetRate(2); err != nil || pc.Status().Rate != 2 {
		t.Fatalf("SetRate(2) = %v", err)
	}

	// 模拟播放协程：收到停止后清理
	go func() {
		<-ctx.Done()
		pc.MarkFinished(ErrUserStopped)
	}()

	if !pc.StopPlayback(true, time.Second) {
		t.Fatal("StopPlayback reported nothing running")
	}
	final := pc.Status()
	if final.IsPlaying || pc.IsRunning() || final.LastError != "" {
		t.Fatalf("final status = %+v", final)
	}
	if pc.StopPlayback(false, 0) {
		t.Fatal("StopPlayback on idle controller returned true")
	}
}

func TestPlaybackControllerRecordsError(t *testing.T) {
	pc := NewPlaybackController()
	seq := &ExecutionSequence{Meta: SequenceMeta{MaxLoopDuration: 1}}
	if _, err := pc.StartPlayback(seq, 1); err != nil {
		t.Fatal(err)
	}
	pc.MarkFinished(errors.New("serial port lost"))

	if status := pc.Status(); status.IsPlaying || status.LastError != "serial port lost" {
		t.Fatalf("status = %+v", status)
	}
}
