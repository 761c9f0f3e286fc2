package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Device 设备模型
type Device struct {
	DeviceID       string
	TenantID       string
	SerialNumber   string
	UID            string
	DeviceName     string
	Status         string
	BusinessAccess string
	BoundBedID     *string
	BoundRoomID    *string
}

// DeviceRepository 设备仓库（仅血氧仪设备）
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

const deviceColumns = `
		d.device_id,
		d.tenant_id,
		d.serial_number,
		d.uid,
		d.device_name,
		d.status,
		d.business_access,
		d.bound_bed_id,
		d.bound_room_id`

func (r *DeviceRepository) scanDevice(row *sql.Row, identifier string) (*Device, error) {
	device := &Device{}
	err := row.Scan(
		&device.DeviceID,
		&device.TenantID,
		&device.SerialNumber,
		&device.UID,
		&device.DeviceName,
		&device.Status,
		&device.BusinessAccess,
		&device.BoundBedID,
		&device.BoundRoomID,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("device not found: %s", identifier)
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return device, nil
}

// GetDeviceBySerialNumber 根据序列号获取血氧仪设备
func (r *DeviceRepository) GetDeviceBySerialNumber(serialNumber string) (*Device, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM devices d
		WHERE d.serial_number = $1
		  AND d.device_type = 'Oximeter'
		LIMIT 1
	`, deviceColumns)

	return r.scanDevice(r.db.QueryRow(query, serialNumber), serialNumber)
}

// GetDeviceByUID 根据 UID 获取血氧仪设备
func (r *DeviceRepository) GetDeviceByUID(uid string) (*Device, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM devices d
		WHERE d.uid = $1
		  AND d.device_type = 'Oximeter'
		LIMIT 1
	`, deviceColumns)

	return r.scanDevice(r.db.QueryRow(query, uid), uid)
}

// GetDeviceByID 根据设备ID获取设备（报警与通知侧补充设备信息用）
func (r *DeviceRepository) GetDeviceByID(tenantID, deviceID string) (*Device, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM devices d
		WHERE d.device_id = $1
		  AND d.tenant_id = $2
		LIMIT 1
	`, deviceColumns)

	return r.scanDevice(r.db.QueryRow(query, deviceID, tenantID), deviceID)
}
