package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrAuthentication is returned when no usable bearer token is available or SIGE rejects it
	ErrAuthentication = errors.New("SIGE authentication failed")

	// ErrRemoteAPIFailure is returned when a SIGE API request fails
	ErrRemoteAPIFailure = errors.New("SIGE API request failed")

	// ErrRemoteNotFound is returned when SIGE has no record for the requested id
	ErrRemoteNotFound = errors.New("record not found in SIGE")

	// ErrCatalogParse is returned when the SIGE catalog dump cannot be parsed
	ErrCatalogParse = errors.New("malformed SIGE catalog response")

	// ErrNoRemoteID is returned when an item has no SIGE id to query
	ErrNoRemoteID = errors.New("item has no SIGE id")

	// ErrMappingNotFound is returned when no mapping exists for a SKU
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrSyncInProgress is returned when another sync pass holds the lock
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")
)

// ErrBatchCancelled is returned when a balance batch stops before its last group
var ErrBatchCancelled = errors.New("balance batch cancelled")
