package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateSKU      = errors.New("article with this SKU already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidMovement   = errors.New("invalid movement type")
	ErrArticleInUse      = errors.New("article is referenced by orders")
	ErrLabelNotAvailable = errors.New("shipping label requires status bezahlt or versendet")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateEmail    = errors.New("email already taken")
	ErrDuplicateCategory = errors.New("category name or prefix already exists")
	ErrLastAdmin         = errors.New("at least one admin must remain")
	ErrWrongPassword     = errors.New("wrong password")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConfirmation      = errors.New("confirmation word does not match")
)

// InsufficientStockError names the article that stopped an order or movement.
type InsufficientStockError struct {
	ArticleName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ArticleName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// UnknownLayoutError is returned for CSV files whose header matches no known layout.
type UnknownLayoutError struct {
	Found []string
}

func (e *UnknownLayoutError) Error() string {
	return fmt.Sprintf("unknown CSV layout, found columns: %s", strings.Join(e.Found, ", "))
}
