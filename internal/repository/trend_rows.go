package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-oximetry/internal/models"

	"go.uber.org/zap"
)

// TrendRowsRepository 趋势决策行仓库（oximetry_trend_rows 表）
// 行一旦写入不可变：重复评估产生的相同前缀行靠唯一键冲突跳过
type TrendRowsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTrendRowsRepository 创建趋势行仓库
func NewTrendRowsRepository(db *sql.DB, logger *zap.Logger) *TrendRowsRepository {
	return &TrendRowsRepository{
		db:     db,
		logger: logger,
	}
}

// InsertRows 批量写入一次评估的全部决策行
// 每设备每分钟序号唯一；已存在的行跳过（ON CONFLICT DO NOTHING），
// 返回本次实际新增的行数
func (r *TrendRowsRepository) InsertRows(ctx context.Context, tenantID, deviceID, mode string, rows []models.TrendRow) (int, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return 0, fmt.Errorf("device_id is required")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO oximetry_trend_rows (
			tenant_id,
			device_id,
			minute_index,
			spo2,
			reserve,
			delta,
			drop_amount,
			alert,
			reason,
			note,
			mode,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, CURRENT_TIMESTAMP
		)
		ON CONFLICT (tenant_id, device_id, minute_index) DO NOTHING
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, row := range rows {
		result, err := tx.ExecContext(ctx, query,
			tenantID,
			deviceID,
			row.Minute,
			row.SpO2,
			row.Reserve,
			row.Delta,
			row.Drop,
			row.Alert,
			row.Reason,
			row.Note,
			mode,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert trend row %d: %w", row.Minute, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trend rows: %w", err)
	}

	return inserted, nil
}

// GetLatestRow 获取设备最新的决策行（没有历史时返回 nil, nil）
func (r *TrendRowsRepository) GetLatestRow(ctx context.Context, tenantID, deviceID string) (*models.TrendRow, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT
			minute_index,
			spo2,
			reserve,
			delta,
			drop_amount,
			alert,
			reason,
			note
		FROM oximetry_trend_rows
		WHERE tenant_id = $1
		  AND device_id = $2
		ORDER BY minute_index DESC
		LIMIT 1
	`

	row, err := r.scanTrendRow(r.db.QueryRowContext(ctx, query, tenantID, deviceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 该设备尚无决策行
		}
		return nil, fmt.Errorf("failed to query latest trend row: %w", err)
	}

	return row, nil
}

// ListRows 按分钟序号升序列出设备的决策行
// limit <= 0 时返回全部
func (r *TrendRowsRepository) ListRows(ctx context.Context, tenantID, deviceID string, limit int) ([]models.TrendRow, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT
			minute_index,
			spo2,
			reserve,
			delta,
			drop_amount,
			alert,
			reason,
			note
		FROM oximetry_trend_rows
		WHERE tenant_id = $1
		  AND device_id = $2
		ORDER BY minute_index ASC
	`
	args := []interface{}{tenantID, deviceID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	sqlRows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend rows: %w", err)
	}
	defer sqlRows.Close()

	rows := []models.TrendRow{}
	for sqlRows.Next() {
		var row models.TrendRow
		var delta, drop sql.NullFloat64
		var note sql.NullString

		err := sqlRows.Scan(
			&row.Minute,
			&row.SpO2,
			&row.Reserve,
			&delta,
			&drop,
			&row.Alert,
			&row.Reason,
			&note,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trend row: %w", err)
		}

		if delta.Valid {
			row.Delta = &delta.Float64
		}
		if drop.Valid {
			row.Drop = &drop.Float64
		}
		if note.Valid {
			row.Note = note.String
		}

		rows = append(rows, row)
	}

	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trend rows: %w", err)
	}

	return rows, nil
}

func (r *TrendRowsRepository) scanTrendRow(sqlRow *sql.Row) (*models.TrendRow, error) {
	var row models.TrendRow
	var delta, drop sql.NullFloat64
	var note sql.NullString

	err := sqlRow.Scan(
		&row.Minute,
		&row.SpO2,
		&row.Reserve,
		&delta,
		&drop,
		&row.Alert,
		&row.Reason,
		&note,
	)
	if err != nil {
		return nil, err
	}

	if delta.Valid {
		row.Delta = &delta.Float64
	}
	if drop.Valid {
		row.Drop = &drop.Float64
	}
	if note.Valid {
		row.Note = note.String
	}

	return &row, nil
}
