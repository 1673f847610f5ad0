package main

import (
	"math"
	"sync"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// 传输时钟：供界面显示当前循环位置，调度器不读取
////////////////////////////////////////////////////////////////////////////////

// TransportClock 按倍率累积的循环时钟
type TransportClock struct {
	mu        sync.Mutex
	maxLoop   float64
	rate      float64
	running   bool
	base      float64   // 上次倍率变更前累积的位置（秒）
	anchor    time.Time // 本段开始的墙钟时间
	nowSource func() time.Time
}

// NewTransportClock 创建传输时钟，maxLoop 为回绕长度
func NewTransportClock(maxLoop float64) *TransportClock {
	return &TransportClock{maxLoop: maxLoop, rate: 1.0, nowSource: time.Now}
}

func (tc *TransportClock) Start() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.running {
		return
	}
	tc.running = true
	tc.anchor = tc.nowSource()
}

func (tc *TransportClock) Stop() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if !tc.running {
		return
	}
	tc.base = tc.positionLocked()
	tc.running = false
}

// SetRate 修改倍率，已走过的位置保持不变
func (tc *TransportClock) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.running {
		tc.base = tc.positionLocked()
		tc.anchor = tc.nowSource()
	}
	tc.rate = rate
}

func (tc *TransportClock) Rate() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.rate
}

func (tc *TransportClock) MaxLoop() float64 {
	return tc.maxLoop
}

// Now 当前循环内的位置（秒）
func (tc *TransportClock) Now() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.maxLoop <= 0 {
		return 0
	}
	return math.Mod(tc.positionLocked(), tc.maxLoop)
}

func (tc *TransportClock) positionLocked() float64 {
	if !tc.running {
		return tc.base
	}
	return tc.base + tc.nowSource().Sub(tc.anchor).Seconds()*tc.rate
}
