package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/wenwu/saas-platform/lease-service/internal/models"
	"github.com/wenwu/saas-platform/lease-service/internal/repository"
)

// CustomerService resolves customers by email
type CustomerService struct {
	customers repository.CustomerStore
	log       *zap.Logger
}

func NewCustomerService(customers repository.CustomerStore, log *zap.Logger) *CustomerService {
	return &CustomerService{customers: customers, log: log.Named("customer")}
}

// NormalizeEmail trims and lower-cases an address after checking it parses.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

// GetOrCreate returns the customer for email, creating it on first use.
// Concurrent calls for the same email resolve to one row.
func (s *CustomerService) GetOrCreate(ctx context.Context, name, email string) (*models.Customer, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	c, err := s.customers.UpsertByEmail(ctx, &models.Customer{
		Name:  strings.TrimSpace(name),
		Email: normalized,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert customer: %w", err)
	}
	return c, nil
}

// FindByEmail returns ErrCustomerNotFound for an address that never checked out.
func (s *CustomerService) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	c, err := s.customers.GetByEmail(ctx, normalized)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}
