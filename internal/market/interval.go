package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval 将 Binance 风格周期字符串转换为 Duration。
// 支持分钟（1m/5m/15m）、小时（1h/4h）与天（1d/3d）。
func ParseInterval(input string) (time.Duration, error) {
	s := strings.TrimSpace(input)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: 非法周期 %q", ErrValidation, input)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: 非法周期 %q", ErrValidation, input)
	}
	switch s[len(s)-1] {
	case 'm', 'T':
		return time.Duration(n) * time.Minute, nil
	case 'h', 'H':
		return time.Duration(n) * time.Hour, nil
	case 'd', 'D':
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: 非法周期 %q", ErrValidation, input)
}

// FormatInterval 将 Duration 还原为周期字符串，用于存储路径与日志。
func FormatInterval(d time.Duration) string {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}

// AlignDown 将毫秒时间戳向下对齐到 step 网格。
func AlignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}
