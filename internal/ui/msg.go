package ui

import (
	"time"

	"github.com/rovshanmuradov/solana-rpc-racer/internal/blockchain/solbc/rpc"
)

// Tea message types for UI communication

// StatusMsg carries a fresh engine snapshot or the error that prevented it
type StatusMsg struct {
	Status rpc.Status
	Err    error
	At     time.Time
}

// tickMsg triggers the next poll
type tickMsg time.Time

// RotatedMsg reports a manual rotation
type RotatedMsg struct {
	To  string
	Err error
}
