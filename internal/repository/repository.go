package repository

import (
	"github.com/prperemyshlev/wearable-sync/internal/utils"
	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	Device DeviceRepository
	Metric MetricRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres, cipher *utils.TokenCipher) *Repositories {
	return &Repositories{
		Device: NewDeviceRepository(db, cipher),
		Metric: NewMetricRepository(db),
	}
}
