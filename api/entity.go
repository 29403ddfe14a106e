package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyEntityName    = errors.New("entity name cannot be empty")
	ErrEmptyEntityKey     = errors.New("entity key cannot be empty")
	ErrInvalidSchedulerID = errors.New("unexpected format in scheduler id")
)

// EntityID identifies a durable entity by name and key.
type EntityID struct {
	Name string
	Key  string
}

// NewEntityID returns an [EntityID] after validating that neither part is empty.
func NewEntityID(name string, key string) (EntityID, error) {
	if name == "" {
		return EntityID{}, ErrEmptyEntityName
	}
	if key == "" {
		return EntityID{}, ErrEmptyEntityKey
	}
	return EntityID{Name: name, Key: key}, nil
}

// SchedulerID returns the instance ID the host uses to address the entity: "@name@key" with
// the name lowercased.
func (e EntityID) SchedulerID() string {
	return "@" + strings.ToLower(e.Name) + "@" + e.Key
}

func (e EntityID) String() string {
	return e.SchedulerID()
}

// ParseSchedulerID is the inverse of [EntityID.SchedulerID].
func ParseSchedulerID(schedulerID string) (EntityID, error) {
	if !strings.HasPrefix(schedulerID, "@") {
		return EntityID{}, fmt.Errorf("%w: %q", ErrInvalidSchedulerID, schedulerID)
	}
	parts := strings.Split(schedulerID[1:], "@")
	if len(parts) != 2 {
		return EntityID{}, fmt.Errorf("%w: %q", ErrInvalidSchedulerID, schedulerID)
	}
	return NewEntityID(parts[0], parts[1])
}
