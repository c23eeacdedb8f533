package service

import "errors"

var (
	ErrInvalidEmail           = errors.New("invalid email address")
	ErrInvalidHostname        = errors.New("invalid hostname")
	ErrPackageNotFound        = errors.New("package not found")
	ErrPackageUnavailable     = errors.New("package not available")
	ErrRegionUnavailable      = errors.New("package not offered in region")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidOrderTransition = errors.New("order cannot be completed in its current status")
	ErrSessionMismatch        = errors.New("checkout session does not belong to order")
	ErrProvisioningFailed     = errors.New("provisioning failed")
	ErrLeaseNotFound          = errors.New("lease not found")
	ErrForbidden              = errors.New("lease belongs to another customer")
	ErrInvalidLeaseTransition = errors.New("lease cannot change from its current status")
	ErrCycleNotFound          = errors.New("billing cycle not found")
	ErrInvalidCycleTransition = errors.New("billing cycle is already paid")
)
