package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesaa/netgraph/internal/store"
	"gorm.io/gorm"
)

// Identity is what the inventory collaborator knows about a device before
// discovery touches it. PrimaryIP and NetworkDriver are required: without an
// address there is nothing to connect to, without a driver no command dialect.
type Identity struct {
	DeviceID      string
	Name          string
	PrimaryIP     string
	Platform      string
	NetworkDriver string
}

// ErrDeviceNotFound is returned by an Inventory for unknown device ids.
var ErrDeviceNotFound = errors.New("device not found in inventory")

// Inventory resolves device identities. Implementations may wrap an external
// CMDB; the default implementation reads devices registered via the API.
type Inventory interface {
	GetDevice(ctx context.Context, deviceID string) (*Identity, error)
}

// Validate checks the fields discovery cannot proceed without.
func (id *Identity) Validate() error {
	if id.PrimaryIP == "" {
		return fmt.Errorf("device %s has no primary IP", id.DeviceID)
	}
	if id.NetworkDriver == "" {
		return fmt.Errorf("device %s has no platform driver", id.DeviceID)
	}
	return nil
}

// StoreInventory serves identities from the local device table.
type StoreInventory struct {
	store *store.Store
}

// NewStoreInventory wraps the store as an Inventory.
func NewStoreInventory(s *store.Store) *StoreInventory {
	return &StoreInventory{store: s}
}

// GetDevice looks the device up by its external id.
func (si *StoreInventory) GetDevice(_ context.Context, deviceID string) (*Identity, error) {
	dev, err := si.store.GetDevice(deviceID)
	if err == gorm.ErrRecordNotFound {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Identity{
		DeviceID:      dev.DeviceID,
		Name:          dev.Name,
		PrimaryIP:     dev.PrimaryIP,
		Platform:      dev.Platform,
		NetworkDriver: dev.NetworkDriver,
	}, nil
}
