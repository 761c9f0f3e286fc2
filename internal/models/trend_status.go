package models

// DeviceTrendStatus 设备最新趋势决策的缓存快照
// 每次评估后整体覆盖写入 Redis；转换检测（OFF→ON / ON→OFF）
// 以上一份快照为基准
type DeviceTrendStatus struct {
	TenantID  string  `json:"tenant_id"`
	DeviceID  string  `json:"device_id"`
	Minute    int     `json:"minute"` // 最新行的分钟序号
	SpO2      int     `json:"spo2"`
	Reserve   float64 `json:"reserve"`
	Alert     string  `json:"alert"`
	Reason    string  `json:"reason"`
	Note      string  `json:"note,omitempty"`
	Mode      string  `json:"mode"`
	UpdatedAt int64   `json:"updated_at"` // Unix 秒
}
