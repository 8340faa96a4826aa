package models

import "time"

type Location struct {
	Latitude  float64   `json:"latitude" bson:"latitude" validate:"latitude"`
	Longitude float64   `json:"longitude" bson:"longitude" validate:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty" bson:"accuracy,omitempty"`
	Address   string    `json:"address,omitempty" bson:"address,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

func (l Location) IsValid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}
