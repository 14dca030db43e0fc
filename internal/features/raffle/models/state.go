package models

import (
	"slices"
)

// MaxTicketNumber is the 6-digit ceiling for ticket numbers.
const MaxTicketNumber = 999999

type Mode string

const (
	ModeRandom     Mode = "random"
	ModeSequential Mode = "sequential"
)

func (m Mode) Valid() bool {
	return m == ModeRandom || m == ModeSequential
}

type TicketStatus string

const (
	TicketReturned  TicketStatus = "returned"
	TicketUnclaimed TicketStatus = "unclaimed"
)

type Direction string

const (
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

// OperatingWindow is one opening interval of the pantry. Day is 0 (Sunday)
// through 6; Open and Close are "HH:MM" in the state's timezone.
type OperatingWindow struct {
	Day   int    `json:"day"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// RaffleState is the single authoritative raffle record.
type RaffleState struct {
	StartNumber      int                  `json:"startNumber"`
	EndNumber        int                  `json:"endNumber"`
	Mode             Mode                 `json:"mode"`
	GeneratedOrder   []int                `json:"generatedOrder"`
	CurrentlyServing *int                 `json:"currentlyServing"`
	TicketStatus     map[int]TicketStatus `json:"ticketStatus"`
	CalledAt         map[int]int64        `json:"calledAt"`
	OrderLocked      bool                 `json:"orderLocked"`
	Timestamp        int64                `json:"timestamp"`
	DisplayURL       string               `json:"displayUrl"`
	OperatingHours   []OperatingWindow    `json:"operatingHours"`
	Timezone         string               `json:"timezone"`
}

// DefaultState returns the empty sentinel state: no range, no order.
func DefaultState() *RaffleState {
	return &RaffleState{
		Mode:           ModeRandom,
		GeneratedOrder: []int{},
		TicketStatus:   map[int]TicketStatus{},
		CalledAt:       map[int]int64{},
		OperatingHours: []OperatingWindow{},
	}
}

// HasRange reports whether a ticket range has been set.
func (s *RaffleState) HasRange() bool {
	return s.StartNumber != 0 && s.EndNumber != 0
}

// InRange reports whether n lies within [StartNumber, EndNumber].
func (s *RaffleState) InRange(n int) bool {
	return s.HasRange() && n >= s.StartNumber && n <= s.EndNumber
}

// IndexOf returns the position of ticket n in the draw order, or -1.
func (s *RaffleState) IndexOf(n int) int {
	return slices.Index(s.GeneratedOrder, n)
}

// ServingIndex returns the draw-order position of the ticket being served, or -1.
func (s *RaffleState) ServingIndex() int {
	if s.CurrentlyServing == nil {
		return -1
	}
	return s.IndexOf(*s.CurrentlyServing)
}

func (s *RaffleState) IsReturned(n int) bool {
	return s.TicketStatus[n] == TicketReturned
}

// Clone returns a deep copy. Callers mutate clones, never persisted values.
func (s *RaffleState) Clone() *RaffleState {
	c := *s
	c.GeneratedOrder = slices.Clone(s.GeneratedOrder)
	if c.GeneratedOrder == nil {
		c.GeneratedOrder = []int{}
	}
	if s.CurrentlyServing != nil {
		v := *s.CurrentlyServing
		c.CurrentlyServing = &v
	}
	c.TicketStatus = make(map[int]TicketStatus, len(s.TicketStatus))
	for k, v := range s.TicketStatus {
		c.TicketStatus[k] = v
	}
	c.CalledAt = make(map[int]int64, len(s.CalledAt))
	for k, v := range s.CalledAt {
		c.CalledAt[k] = v
	}
	c.OperatingHours = slices.Clone(s.OperatingHours)
	if c.OperatingHours == nil {
		c.OperatingHours = []OperatingWindow{}
	}
	return &c
}

// Normalize fills nil collections and a missing mode left by older or
// hand-edited payloads.
func (s *RaffleState) Normalize() *RaffleState {
	if s.GeneratedOrder == nil {
		s.GeneratedOrder = []int{}
	}
	if s.TicketStatus == nil {
		s.TicketStatus = map[int]TicketStatus{}
	}
	if s.CalledAt == nil {
		s.CalledAt = map[int]int64{}
	}
	if s.OperatingHours == nil {
		s.OperatingHours = []OperatingWindow{}
	}
	if !s.Mode.Valid() {
		s.Mode = ModeRandom
	}
	return s
}

// IntPtr is a small helper for optional ticket numbers.
func IntPtr(v int) *int {
	return &v
}
