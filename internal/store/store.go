// Package store manages the NetGraph database layer.
// It initializes GORM with SQLite and owns the device record, the
// per-category discovery tables, and the TTL-gated command cache.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/vesaa/netgraph/internal/config"
	"github.com/vesaa/netgraph/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the database handle plus cache policy.
type Store struct {
	db  *gorm.DB
	ttl time.Duration

	// now is swappable in tests to control TTL expiry.
	now func() time.Time
}

// Open opens the database, runs AutoMigrate and returns a ready Store.
func Open(cfg *config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported db_driver %q (use 'sqlite')", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Device{},
		&models.InterfaceRecord{},
		&models.IPAddressRecord{},
		&models.ARPEntry{},
		&models.RouteEntry{},
		&models.MACTableEntry{},
		&models.CDPNeighborRecord{},
		&models.CommandCache{},
	); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	log.Printf("[db] opened %s/%s (cache ttl %s)", cfg.DBDriver, cfg.DBPath, cfg.CacheTTL())
	return &Store{db: db, ttl: cfg.CacheTTL(), now: time.Now}, nil
}

// TTL returns the configured command-cache time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// ─── Devices ─────────────────────────────────────────────────────────────────

// UpsertDevice creates or updates the device record keyed by DeviceID.
// Discovery calls this before writing any per-category rows so those rows
// always have an owning device.
func (s *Store) UpsertDevice(deviceID, name, primaryIP, platform, driver string) (*models.Device, error) {
	var dev models.Device
	result := s.db.Where("device_id = ?", deviceID).First(&dev)

	if result.Error == gorm.ErrRecordNotFound {
		dev = models.Device{
			DeviceID:       deviceID,
			Name:           name,
			PrimaryIP:      primaryIP,
			Platform:       platform,
			NetworkDriver:  driver,
			LastDiscovered: s.now(),
		}
		if err := s.db.Create(&dev).Error; err != nil {
			return nil, err
		}
		return &dev, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	if err := s.db.Model(&dev).Updates(map[string]any{
		"name":            name,
		"primary_ip":      primaryIP,
		"platform":        platform,
		"network_driver":  driver,
		"last_discovered": s.now(),
	}).Error; err != nil {
		return nil, err
	}
	return &dev, nil
}

// GetDevice returns the device record for an external id, or gorm.ErrRecordNotFound.
func (s *Store) GetDevice(deviceID string) (*models.Device, error) {
	var dev models.Device
	if err := s.db.Where("device_id = ?", deviceID).First(&dev).Error; err != nil {
		return nil, err
	}
	return &dev, nil
}

// ListDevices returns all devices, or only the given subset when ids is non-empty.
func (s *Store) ListDevices(ids []string) ([]models.Device, error) {
	var devices []models.Device
	q := s.db.Order("device_id")
	if len(ids) > 0 {
		q = q.Where("device_id IN ?", ids)
	}
	if err := q.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// DeleteDevice removes a device and every per-category row it owns, keeping
// the row-never-without-device invariant true in both directions.
func (s *Store) DeleteDevice(deviceID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&models.InterfaceRecord{}, &models.IPAddressRecord{}, &models.ARPEntry{},
			&models.RouteEntry{}, &models.MACTableEntry{}, &models.CDPNeighborRecord{},
			&models.CommandCache{},
		} {
			if err := tx.Unscoped().Where("device_id = ?", deviceID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Where("device_id = ?", deviceID).Delete(&models.Device{}).Error
	})
}

// ─── Command cache ───────────────────────────────────────────────────────────

// GetValidCache returns the cached rows for (device, command) if the entry is
// younger than the TTL. Stale entries are ignored, not deleted — the next
// fresh fetch overwrites them in place.
//
// The read-then-maybe-write sequence around this cache is not atomic: two
// near-simultaneous refreshes of the same key can both miss and both fetch.
// At-most-one-fresh-fetch-per-TTL is best-effort by design.
func (s *Store) GetValidCache(deviceID, command string) ([]map[string]any, bool, error) {
	var entry models.CommandCache
	err := s.db.Where("device_id = ? AND command = ?", deviceID, command).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !s.now().Before(entry.UpdatedAt.Add(s.ttl)) {
		return nil, false, nil
	}

	var rows []map[string]any
	if err := json.Unmarshal([]byte(entry.Payload), &rows); err != nil {
		return nil, false, fmt.Errorf("decoding cached payload: %w", err)
	}
	return rows, true, nil
}

// SetCache upserts the raw rows for (device, command), always overwriting
// the previous payload and timestamp.
func (s *Store) SetCache(deviceID, command string, rows []map[string]any) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding cache payload: %w", err)
	}

	var entry models.CommandCache
	result := s.db.Where("device_id = ? AND command = ?", deviceID, command).First(&entry)
	if result.Error == gorm.ErrRecordNotFound {
		entry = models.CommandCache{DeviceID: deviceID, Command: command, Payload: string(payload)}
		return s.db.Create(&entry).Error
	}
	if result.Error != nil {
		return result.Error
	}
	return s.db.Model(&entry).Updates(map[string]any{
		"payload":    string(payload),
		"updated_at": s.now(),
	}).Error
}

// ─── Per-category table writers (full replace per refresh) ──────────────────

// ReplaceInterfaces swaps the full interface table for a device.
func (s *Store) ReplaceInterfaces(deviceID string, rows []models.InterfaceRecord) error {
	return s.replace(deviceID, &models.InterfaceRecord{}, func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// ReplaceIPAddresses swaps the full IP address table for a device.
func (s *Store) ReplaceIPAddresses(deviceID string, rows []models.IPAddressRecord) error {
	return s.replace(deviceID, &models.IPAddressRecord{}, func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// ReplaceARPEntries swaps the full ARP table for a device.
func (s *Store) ReplaceARPEntries(deviceID string, rows []models.ARPEntry) error {
	return s.replace(deviceID, &models.ARPEntry{}, func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// ReplaceMACEntries swaps the full MAC address table for a device.
func (s *Store) ReplaceMACEntries(deviceID string, rows []models.MACTableEntry) error {
	return s.replace(deviceID, &models.MACTableEntry{}, func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// ReplaceCDPNeighbors swaps the full neighbor table for a device.
func (s *Store) ReplaceCDPNeighbors(deviceID string, rows []models.CDPNeighborRecord) error {
	return s.replace(deviceID, &models.CDPNeighborRecord{}, func(tx *gorm.DB) error {
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// ReplaceRoutes swaps the routing table for a device and a single protocol.
// Other protocols' routes for the device are untouched.
func (s *Store) ReplaceRoutes(deviceID, protocol string, rows []models.RouteEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("device_id = ? AND protocol = ?", deviceID, protocol).
			Delete(&models.RouteEntry{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (s *Store) replace(deviceID string, model any, insert func(tx *gorm.DB) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("device_id = ?", deviceID).Delete(model).Error; err != nil {
			return err
		}
		return insert(tx)
	})
}

// ─── Readers (graph builder) ─────────────────────────────────────────────────

// Interfaces returns interface rows, optionally scoped to a device subset.
func (s *Store) Interfaces(deviceIDs []string) ([]models.InterfaceRecord, error) {
	var rows []models.InterfaceRecord
	return rows, s.scoped(deviceIDs).Find(&rows).Error
}

// IPAddresses returns IP address rows, optionally scoped to a device subset.
func (s *Store) IPAddresses(deviceIDs []string) ([]models.IPAddressRecord, error) {
	var rows []models.IPAddressRecord
	return rows, s.scoped(deviceIDs).Find(&rows).Error
}

// ARPEntries returns ARP rows, optionally scoped to a device subset.
func (s *Store) ARPEntries(deviceIDs []string) ([]models.ARPEntry, error) {
	var rows []models.ARPEntry
	return rows, s.scoped(deviceIDs).Find(&rows).Error
}

// Routes returns routing rows for the given protocols, optionally scoped to
// a device subset. Empty protocols means all three.
func (s *Store) Routes(deviceIDs, protocols []string) ([]models.RouteEntry, error) {
	q := s.scoped(deviceIDs)
	if len(protocols) > 0 {
		q = q.Where("protocol IN ?", protocols)
	}
	var rows []models.RouteEntry
	return rows, q.Find(&rows).Error
}

// MACEntries returns MAC table rows, optionally scoped to a device subset.
func (s *Store) MACEntries(deviceIDs []string) ([]models.MACTableEntry, error) {
	var rows []models.MACTableEntry
	return rows, s.scoped(deviceIDs).Find(&rows).Error
}

// CDPNeighbors returns neighbor rows, optionally scoped to a device subset.
func (s *Store) CDPNeighbors(deviceIDs []string) ([]models.CDPNeighborRecord, error) {
	var rows []models.CDPNeighborRecord
	return rows, s.scoped(deviceIDs).Find(&rows).Error
}

func (s *Store) scoped(deviceIDs []string) *gorm.DB {
	if len(deviceIDs) > 0 {
		return s.db.Where("device_id IN ?", deviceIDs)
	}
	return s.db
}
