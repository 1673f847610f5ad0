package motion

// Params 规划参数。作为不可变值传入整条流水线，调用方不应逐个字段调整。
type Params struct {
	MinInterval     float64 // 映射区间下限（秒）
	MaxInterval     float64 // 映射区间上限（秒）
	MinVelocity     float64
	MaxVelocity     float64
	MinAcceleration float64
	MaxAcceleration float64
	MinBackswing    float64 // 最低回抬高度（mm）
	MaxBackswing    float64 // 最高回抬高度（mm）
	Exponent        float64 // 幂律缓动指数

	StrikeZ       float64 // 击打位置Z（mm）
	PrepOffset    float64 // 击打指令的机械准备提前量（秒）
	CommLatency   float64 // 固定通信延迟（秒）
	SettleDelay   float64 // 击打后开始回抬的延迟（秒）
	SkipThreshold float64 // 间隔不大于该值的音符被丢弃（秒）
}

// DefaultParams 返回固定的设计参数
func DefaultParams() Params {
	return Params{
		MinInterval:     0.1,
		MaxInterval:     2.0,
		MinVelocity:     100.0,
		MaxVelocity:     400.0,
		MinAcceleration: 100.0,
		MaxAcceleration: 800.0,
		MinBackswing:    32,
		MaxBackswing:    70,
		Exponent:        0.75,

		StrikeZ:       22,
		PrepOffset:    0.1,
		CommLatency:   0.050,
		SettleDelay:   0.01,
		SkipThreshold: 0.02,
	}
}
