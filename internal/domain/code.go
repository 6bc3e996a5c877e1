// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxNameLen = 120

var (
	ErrCodeEmpty   = errors.New("code empty")
	ErrNameTooLong = errors.New("name too long")
)

type CodeStatus string

const (
	CodeActive  CodeStatus = "active"
	CodeRevoked CodeStatus = "revoked"
)

// AccessCode is a single-use entry token for a live session. The code
// string itself is the identity; Name is a display label only.
type AccessCode struct {
	Code      string     `json:"code"`
	Name      string     `json:"name,omitempty"`
	Status    CodeStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// NormalizeCode is the single normalization applied at every entry point:
// whitespace stripped, uppercased. Identical codes typed in different
// cases must map to one record.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// NewAccessCode avoids raw literals in adapters and keeps construction obvious.
func NewAccessCode(code, name string) (*AccessCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrCodeEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &AccessCode{
		Code:      code,
		Name:      strings.TrimSpace(name),
		Status:    CodeActive,
		CreatedAt: time.Now(),
	}, nil
}
