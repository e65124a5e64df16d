package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"autoelite.com/storefront/internal/cache"
	"autoelite.com/storefront/internal/store"
)

type VehicleRepository interface {
	CreateVehicle(ctx context.Context, v *store.Vehicle) error
	GetVehicle(ctx context.Context, id string) (*store.Vehicle, error)
	ListVehicles(ctx context.Context, status *store.VehicleStatus) ([]store.Vehicle, error)
	UpdateVehicle(ctx context.Context, id string, patch store.VehiclePatch) (*store.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
}

var (
	keyListAll       = cache.Key("vehicles", "list", "all")
	keyListAvailable = cache.Key("vehicles", "list", "available")
	keyListPrefix    = cache.Key("vehicles", "list")
)

func vehicleKey(id string) string { return cache.Key("vehicles", "item", id) }

type InventoryStats struct {
	Total          int     `json:"total"`
	Available      int     `json:"available"`
	Reserved       int     `json:"reserved"`
	Sold           int     `json:"sold"`
	AvailableValue float64 `json:"available_value"`
}

// VehicleService is the inventory data access used by the catalog, the
// admin console and the assistant. Reads go through the query cache; every
// mutation invalidates the list views and the affected item.
type VehicleService struct {
	repo  VehicleRepository
	cache *cache.QueryCache
	log   zerolog.Logger
}

func NewVehicleService(repo VehicleRepository, c *cache.QueryCache, log zerolog.Logger) *VehicleService {
	return &VehicleService{repo: repo, cache: c, log: log}
}

func (s *VehicleService) ListAll(ctx context.Context) ([]store.Vehicle, error) {
	return s.cachedList(ctx, keyListAll, nil)
}

// ListAvailable returns vehicles on sale, newest first.
func (s *VehicleService) ListAvailable(ctx context.Context) ([]store.Vehicle, error) {
	available := store.VehicleAvailable
	return s.cachedList(ctx, keyListAvailable, &available)
}

func (s *VehicleService) cachedList(ctx context.Context, key string, status *store.VehicleStatus) ([]store.Vehicle, error) {
	if v, ok := s.cache.Get(key); ok {
		return slices.Clone(v.([]store.Vehicle)), nil
	}
	version := s.cache.Version()
	vehicles, err := s.repo.ListVehicles(ctx, status)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, slices.Clone(vehicles), version)
	return vehicles, nil
}

// GetVehicle returns nil, nil for unknown ids. Misses are not cached.
func (s *VehicleService) GetVehicle(ctx context.Context, id string) (*store.Vehicle, error) {
	if id == "" {
		return nil, nil
	}
	key := vehicleKey(id)
	if v, ok := s.cache.Get(key); ok {
		vehicle := v.(store.Vehicle)
		return &vehicle, nil
	}
	version := s.cache.Version()
	vehicle, err := s.repo.GetVehicle(ctx, id)
	if err != nil || vehicle == nil {
		return vehicle, err
	}
	s.cache.Set(key, *vehicle, version)
	return vehicle, nil
}

// Search filters the listing by a case-insensitive "brand model" match.
func (s *VehicleService) Search(ctx context.Context, query string, availableOnly bool) ([]store.Vehicle, error) {
	var (
		vehicles []store.Vehicle
		err      error
	)
	if availableOnly {
		vehicles, err = s.ListAvailable(ctx)
	} else {
		vehicles, err = s.ListAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return vehicles, nil
	}
	matches := []store.Vehicle{}
	for _, v := range vehicles {
		if strings.Contains(strings.ToLower(v.Brand+" "+v.Model), query) {
			matches = append(matches, v)
		}
	}
	return matches, nil
}

func (s *VehicleService) Stats(ctx context.Context) (InventoryStats, error) {
	vehicles, err := s.ListAll(ctx)
	if err != nil {
		return InventoryStats{}, err
	}
	stats := InventoryStats{Total: len(vehicles)}
	for _, v := range vehicles {
		switch v.Status {
		case store.VehicleAvailable:
			stats.Available++
			stats.AvailableValue += v.Price
		case store.VehicleReserved:
			stats.Reserved++
		case store.VehicleSold:
			stats.Sold++
		}
	}
	return stats, nil
}

func (s *VehicleService) Create(ctx context.Context, v *store.Vehicle, createdBy string) error {
	if err := s.create(ctx, v, createdBy); err != nil {
		return err
	}
	s.invalidate(v.ID)
	s.log.Info().Str("vehicle_id", v.ID).Str("vehicle", v.DisplayName()).Msg("vehicle created")
	return nil
}

// create validates and stores v without touching the cache.
func (s *VehicleService) create(ctx context.Context, v *store.Vehicle, createdBy string) error {
	if v.Status == "" {
		v.Status = store.VehicleAvailable
	}
	if err := ValidateVehicle(v); err != nil {
		return err
	}
	if createdBy != "" {
		v.CreatedBy = &createdBy
	}
	return s.repo.CreateVehicle(ctx, v)
}

// Update applies a partial change. Unknown ids give store.ErrNotFound.
func (s *VehicleService) Update(ctx context.Context, id string, patch store.VehiclePatch) (*store.Vehicle, error) {
	current, err := s.repo.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, store.ErrNotFound
	}
	patch.Apply(current)
	if err := ValidateVehicle(current); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateVehicle(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(id)
	s.log.Info().Str("vehicle_id", id).Msg("vehicle updated")
	return updated, nil
}

func (s *VehicleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteVehicle(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	s.log.Info().Str("vehicle_id", id).Msg("vehicle deleted")
	return nil
}

// Import creates every valid vehicle and skips the rest, returning how many
// were stored.
func (s *VehicleService) Import(ctx context.Context, vehicles []store.Vehicle, createdBy string) (int, error) {
	count := 0
	defer func() {
		// One clear covers the whole batch.
		if count > 0 {
			s.cache.Clear()
			s.log.Info().Int("imported", count).Msg("vehicles imported")
		}
	}()
	for i := range vehicles {
		v := vehicles[i]
		v.ID = ""
		err := s.create(ctx, &v, createdBy)
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			s.log.Warn().Int("index", i).Str("field", verr.Field).Msg("skipping invalid seed vehicle")
			continue
		case err != nil:
			return count, fmt.Errorf("failed to import vehicle %d: %w", i, err)
		}
		count++
	}
	return count, nil
}

func (s *VehicleService) invalidate(id string) {
	s.cache.InvalidatePrefix(keyListPrefix)
	if id != "" {
		s.cache.Invalidate(vehicleKey(id))
	}
}

func ValidateVehicle(v *store.Vehicle) error {
	switch {
	case strings.TrimSpace(v.Brand) == "":
		return &ValidationError{Field: "brand", Message: "brand is required"}
	case strings.TrimSpace(v.Model) == "":
		return &ValidationError{Field: "model", Message: "model is required"}
	case strings.TrimSpace(v.Color) == "":
		return &ValidationError{Field: "color", Message: "color is required"}
	case v.Year < 1900 || v.Year > time.Now().Year()+1:
		return &ValidationError{Field: "year", Message: fmt.Sprintf("year %d is out of range", v.Year)}
	case v.Price < 0:
		return &ValidationError{Field: "price", Message: "price cannot be negative"}
	case v.Mileage < 0:
		return &ValidationError{Field: "mileage", Message: "mileage cannot be negative"}
	}
	if _, ok := store.FuelLabels[v.Fuel]; !ok {
		return &ValidationError{Field: "fuel", Message: fmt.Sprintf("unknown fuel type %q", v.Fuel)}
	}
	if _, ok := store.TransmissionLabels[v.Transmission]; !ok {
		return &ValidationError{Field: "transmission", Message: fmt.Sprintf("unknown transmission %q", v.Transmission)}
	}
	if _, ok := store.VehicleStatusLabels[v.Status]; !ok {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", v.Status)}
	}
	return nil
}
