package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SampleMessage 血氧仪 MQTT 上报的单条采样
// pulse_rate 仅透传缓存，趋势引擎只消费 spo2
type SampleMessage struct {
	SpO2      int   `json:"spo2"`
	PulseRate int   `json:"pulse_rate,omitempty"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

var seriesSeparators = regexp.MustCompile(`[,\s;]+`)

// ParseSeries 解析自由文本的 SpO2 序列（逗号/空白/分号分隔）
// 空文本返回空序列；出现非整数 token 时报错
func ParseSeries(text string) ([]int, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	parts := seriesSeparators.Split(trimmed, -1)
	vals := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid number in series: %q", p)
		}
		vals = append(vals, n)
	}
	return vals, nil
}
