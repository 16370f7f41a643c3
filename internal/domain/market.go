// Package domain defines the core types shared by every layer of updownbot:
// markets, quotes, snapshots, opportunities, trades, and the store and cache
// interfaces implemented by the adapter packages.
package domain

import "time"

// Side is one of the two outcomes of an up/down market.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
)

// Token is one tradable outcome of a market. It carries no price state;
// prices live in Quote.
type Token struct {
	ID   string // CLOB token ID
	Side Side
}

// Market is a short-horizon up/down prediction market, resolved once at
// discovery time and immutable afterwards. Rotation to a new period swaps
// the whole Market value, never mutates it.
type Market struct {
	ConditionID string
	Label       string // human label, e.g. "SOL-15m"
	Slug        string
	Up          Token
	Down        Token
	EndDate     time.Time
	Active      bool
	Closed      bool
}

// Token returns the outcome token for the given side.
func (m Market) Token(side Side) Token {
	if side == SideUp {
		return m.Up
	}
	return m.Down
}

// Ready reports whether both token IDs have been resolved.
func (m Market) Ready() bool {
	return m.ConditionID != "" && m.Up.ID != "" && m.Down.ID != ""
}
