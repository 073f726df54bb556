package models

import (
	"fmt"
	"math"
	"time"
)

type SignalType string

const (
	SignalLocation    SignalType = "location"
	SignalEnvironment SignalType = "environment"
	SignalQuality     SignalType = "quality"
)

// AllSignals is the default tracked set.
var AllSignals = []SignalType{SignalLocation, SignalEnvironment, SignalQuality}

func (t SignalType) Valid() bool {
	switch t {
	case SignalLocation, SignalEnvironment, SignalQuality:
		return true
	}
	return false
}

type Location struct {
	Lat     float64 `json:"lat" msgpack:"lat"`
	Lon     float64 `json:"lon" msgpack:"lon"`
	Address string  `json:"address,omitempty" msgpack:"address,omitempty"`
}

type Environment struct {
	TemperatureC float64 `json:"temperatureC" msgpack:"temperatureC"`
	HumidityPct  float64 `json:"humidityPct" msgpack:"humidityPct"`
}

type Quality struct {
	Score float64 `json:"score" msgpack:"score"`
	Grade string  `json:"grade" msgpack:"grade"`
}

// SignalSample is one observation. Exactly one payload pointer matches Type.
type SignalSample struct {
	Type        SignalType   `json:"type"`
	Location    *Location    `json:"location,omitempty"`
	Environment *Environment `json:"environment,omitempty"`
	Quality     *Quality     `json:"quality,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Validate checks that the payload matches Type and lies in physical
// bounds: coordinates on the globe, humidity and quality score in [0, 100].
func (s SignalSample) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown signal type %q", s.Type)
	}
	switch s.Type {
	case SignalLocation:
		if s.Location == nil {
			return fmt.Errorf("location payload is required")
		}
		if !within(s.Location.Lat, -90, 90) || !within(s.Location.Lon, -180, 180) {
			return fmt.Errorf("coordinates %v,%v out of range", s.Location.Lat, s.Location.Lon)
		}
	case SignalEnvironment:
		if s.Environment == nil {
			return fmt.Errorf("environment payload is required")
		}
		if !within(s.Environment.TemperatureC, math.Inf(-1), math.Inf(1)) {
			return fmt.Errorf("temperature %v is not a number", s.Environment.TemperatureC)
		}
		if !within(s.Environment.HumidityPct, 0, 100) {
			return fmt.Errorf("humidity %v out of range", s.Environment.HumidityPct)
		}
	case SignalQuality:
		if s.Quality == nil {
			return fmt.Errorf("quality payload is required")
		}
		if !within(s.Quality.Score, 0, 100) {
			return fmt.Errorf("quality score %v out of range", s.Quality.Score)
		}
	}
	return nil
}

// within is false for NaN and infinities as well as out of range values.
func within(v, lo, hi float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= lo && v <= hi
}

// SignalState is the last known value of every signal of a session.
type SignalState struct {
	Location    Location    `json:"location"`
	Environment Environment `json:"environment"`
	Quality     Quality     `json:"quality"`
}

// Apply returns the state with the sample's payload folded in.
func (st SignalState) Apply(s SignalSample) SignalState {
	switch s.Type {
	case SignalLocation:
		if s.Location != nil {
			st.Location = *s.Location
		}
	case SignalEnvironment:
		if s.Environment != nil {
			st.Environment = *s.Environment
		}
	case SignalQuality:
		if s.Quality != nil {
			st.Quality = *s.Quality
		}
	}
	return st
}

// Sample builds an unchanged sample of the given type from the state.
func (st SignalState) Sample(t SignalType, at time.Time) SignalSample {
	s := SignalSample{Type: t, Timestamp: at}
	switch t {
	case SignalLocation:
		loc := st.Location
		s.Location = &loc
	case SignalEnvironment:
		env := st.Environment
		s.Environment = &env
	case SignalQuality:
		q := st.Quality
		s.Quality = &q
	}
	return s
}

// ShipmentSnapshot is the seed state read from the business-record store.
type ShipmentSnapshot struct {
	ID              string      `json:"id"`
	Location        Location    `json:"location"`
	Environmental   Environment `json:"environmental"`
	QualityTracking Quality     `json:"qualityTracking"`
}

func (s ShipmentSnapshot) State() SignalState {
	return SignalState{
		Location:    s.Location,
		Environment: s.Environmental,
		Quality:     s.QualityTracking,
	}
}
