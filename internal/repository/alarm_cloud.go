package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// AlarmCloudRepository 报警策略仓库（alarm_cloud 表）
// 血氧趋势规则覆盖存放在 conditions JSONB 的 spo2_trend 键下
type AlarmCloudRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmCloudRepository 创建报警策略仓库
func NewAlarmCloudRepository(db *sql.DB, logger *zap.Logger) *AlarmCloudRepository {
	return &AlarmCloudRepository{
		db:     db,
		logger: logger,
	}
}

// GetTrendRuleOverrides 获取租户的血氧趋势规则覆盖
// 匹配优先级：1) 租户特定配置，2) 系统默认配置（tenant_id IS NULL）
// 没有任何配置或 conditions 中没有 spo2_trend 键时返回 nil（使用内置默认）
func (r *AlarmCloudRepository) GetTrendRuleOverrides(tenantID string) (json.RawMessage, error) {
	// 1. 优先查询租户特定配置
	var conditions []byte
	query := `
		SELECT conditions
		FROM alarm_cloud
		WHERE tenant_id = $1
	`

	err := r.db.QueryRow(query, tenantID).Scan(&conditions)
	if err == sql.ErrNoRows {
		// 2. 如果租户没有配置，查询系统默认配置（tenant_id = NULL）
		query = `
			SELECT conditions
			FROM alarm_cloud
			WHERE tenant_id IS NULL
		`
		err = r.db.QueryRow(query).Scan(&conditions)
		if err == sql.ErrNoRows {
			return nil, nil // 没有任何策略配置
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alarm_cloud: %w", err)
	}

	if len(conditions) == 0 {
		return nil, nil
	}

	var condMap map[string]json.RawMessage
	if err := json.Unmarshal(conditions, &condMap); err != nil {
		return nil, fmt.Errorf("failed to parse alarm_cloud conditions: %w", err)
	}

	return condMap["spo2_trend"], nil
}
