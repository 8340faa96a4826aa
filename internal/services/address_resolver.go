package services

import (
	"context"
	"errors"
	"time"

	"sosalert/internal/models"
	"sosalert/internal/repositories/interfaces"
	"sosalert/pkg/logger"
	"sosalert/pkg/maps"
)

const defaultGeocodeTimeout = 3 * time.Second

// AddressResolver fills in a street address for emergencies triggered with
// bare coordinates, so alerts read "near 285 Fulton St" instead of numbers.
type AddressResolver interface {
	Resolve(ctx context.Context, emergency *models.Emergency)
}

type addressResolver struct {
	geocoder    maps.Geocoder
	emergencies interfaces.EmergencyRepository
	timeout     time.Duration
	logger      *logger.Logger
}

func NewAddressResolver(geocoder maps.Geocoder, emergencies interfaces.EmergencyRepository, timeout time.Duration, log *logger.Logger) AddressResolver {
	if timeout <= 0 {
		timeout = defaultGeocodeTimeout
	}
	return &addressResolver{
		geocoder:    geocoder,
		emergencies: emergencies,
		timeout:     timeout,
		logger:      log,
	}
}

// Resolve updates emergency in place and persists the address. Lookup
// failures only cost the address; alerts still go out with coordinates.
func (r *addressResolver) Resolve(ctx context.Context, emergency *models.Emergency) {
	if emergency.Location.Address != "" {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log := r.logger.WithEmergencyID(emergency.ID)
	result, err := r.geocoder.ReverseGeocode(lookupCtx, emergency.Location.Latitude, emergency.Location.Longitude)
	if err != nil {
		if errors.Is(err, maps.ErrNoResults) {
			log.Debug("No address found for emergency location")
		} else {
			log.WithError(err).Warn("Reverse geocoding failed")
		}
		return
	}

	emergency.Location.Address = result.Address
	if err := r.emergencies.SetAddress(ctx, emergency.ID, result.Address); err != nil {
		log.WithError(err).Warn("Failed to store resolved address")
	}
}
