// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package syncmerge

// TrackerService describes one tracking service known to this replica.
type TrackerService struct {
	ID   int64
	Name string
}

// TrackerRegistry resolves a track entity's service id to a locally
// registered tracking service. A miss means the service is no longer
// available on this replica and the track entity is skipped.
type TrackerRegistry interface {
	Lookup(serviceID int64) (*TrackerService, bool)
}

// StaticTrackerRegistry is a fixed id-keyed registry, suitable for hosts
// that register their tracker set at startup.
type StaticTrackerRegistry map[int64]TrackerService

// NewTrackerRegistry builds a StaticTrackerRegistry from the given services.
func NewTrackerRegistry(services ...TrackerService) StaticTrackerRegistry {
	reg := make(StaticTrackerRegistry, len(services))
	for _, svc := range services {
		reg[svc.ID] = svc
	}
	return reg
}

// Lookup implements TrackerRegistry.
func (r StaticTrackerRegistry) Lookup(serviceID int64) (*TrackerService, bool) {
	svc, ok := r[serviceID]
	if !ok {
		return nil, false
	}
	return &svc, true
}
