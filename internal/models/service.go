package models

// Service is a bookable studio service as fetched from the catalog.
// Price is in minor currency units. Duration may arrive in minutes or
// milliseconds depending on which backend path produced it.
type Service struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Price    int64  `json:"price" yaml:"price"`
	Duration int64  `json:"duration" yaml:"duration"`
	Currency string `json:"currency" yaml:"currency"`
}

// durationMillisThreshold separates minute values from millisecond values.
// No real service runs for 10000 minutes, so anything above it is millis.
const durationMillisThreshold = 10000

// DurationMinutes normalizes the raw duration to minutes.
func (s Service) DurationMinutes() int64 {
	if s.Duration > durationMillisThreshold {
		return s.Duration / 60000
	}
	return s.Duration
}

// Subtotal sums service prices in minor units.
func Subtotal(services []Service) int64 {
	var total int64
	for _, svc := range services {
		total += svc.Price
	}
	return total
}
