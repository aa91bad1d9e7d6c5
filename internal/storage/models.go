package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SettingsKey is the fixed key of the single recorder settings record.
const SettingsKey = "recorder"
