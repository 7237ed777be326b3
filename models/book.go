package models

import "time"

// RawLevel is a single price level as encoded in the archive and on the wire.
// Prices and sizes are string-encoded decimals and must be parsed before any
// feature arithmetic.
type RawLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int    `json:"n"`
}

// RawL2Snapshot mirrors the l2Book payload: levels[0] holds bids sorted high
// to low, levels[1] holds asks sorted low to high.
type RawL2Snapshot struct {
	Coin   string       `json:"coin"`
	Time   int64        `json:"time"`
	Levels [][]RawLevel `json:"levels"`
}

// WSMessage is the envelope for messages on the l2Book channel.
type WSMessage struct {
	Channel string        `json:"channel"`
	Data    RawL2Snapshot `json:"data"`
}

// BookLevel is a parsed price level.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookSnapshot is the normalized point-in-time view of the book's levels
// for one coin. Bids are sorted high to low and asks low to high; the producer
// guarantees the ordering, consumers do not re-sort. Timestamps within one
// coin's sequence are non-decreasing at millisecond precision.
type OrderBookSnapshot struct {
	Coin      string      `json:"coin"`
	Timestamp time.Time   `json:"timestamp"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
}

// BestBid returns the top of the bid side.
func (s OrderBookSnapshot) BestBid() (BookLevel, bool) {
	if len(s.Bids) == 0 {
		return BookLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top of the ask side.
func (s OrderBookSnapshot) BestAsk() (BookLevel, bool) {
	if len(s.Asks) == 0 {
		return BookLevel{}, false
	}
	return s.Asks[0], true
}

// Crossed reports whether both sides are present with best bid at or above
// best ask, which violates the snapshot invariant.
func (s OrderBookSnapshot) Crossed() bool {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	return okBid && okAsk && bid.Price >= ask.Price
}
