// Package engine holds the raffle state transitions. Every function takes the
// current state and returns a fresh copy with the change applied; nothing here
// touches storage or assigns revision timestamps, so both backends share one
// set of rules.
package engine

import (
	"fmt"
	"slices"

	apperrors "pantry-raffle-backend/internal/common/errors"
	"pantry-raffle-backend/internal/features/raffle/models"
	"pantry-raffle-backend/internal/utils/random"
)

type GenerateInput struct {
	StartNumber int
	EndNumber   int
	Mode        models.Mode
}

type BatchInput struct {
	StartNumber int
	EndNumber   int
	BatchSize   int
}

type Engine struct {
	shuffler random.Shuffler
}

func New(shuffler random.Shuffler) *Engine {
	if shuffler == nil {
		shuffler = random.CryptoShuffler{}
	}
	return &Engine{shuffler: shuffler}
}

// Generate builds the first draw order for a fresh range.
func (e *Engine) Generate(cur *models.RaffleState, in GenerateInput) (*models.RaffleState, error) {
	if cur.OrderLocked {
		return nil, apperrors.UserInput("Order is locked. Use reset to start a new lottery.")
	}
	if err := ValidateRange(in.StartNumber, in.EndNumber); err != nil {
		return nil, err
	}
	mode := in.Mode
	if mode == "" {
		mode = cur.Mode
	}
	if !mode.Valid() {
		return nil, invalidMode()
	}

	order, err := e.arrange(mode, TicketRange(in.StartNumber, in.EndNumber))
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	next.StartNumber = in.StartNumber
	next.EndNumber = in.EndNumber
	next.Mode = mode
	next.GeneratedOrder = order
	next.OrderLocked = true
	next.CurrentlyServing = nil
	next.TicketStatus = map[int]models.TicketStatus{}
	next.CalledAt = map[int]int64{}
	return next, nil
}

// Append raises the range end and adds the new tickets to the tail of the
// draw order. The current pool must be fully drawn first.
func (e *Engine) Append(cur *models.RaffleState, newEnd int) (*models.RaffleState, error) {
	if err := validateNewEnd(cur, newEnd); err != nil {
		return nil, err
	}
	if undrawn := UndrawnPool(cur.StartNumber, cur.EndNumber, cur.GeneratedOrder); len(undrawn) > 0 {
		return nil, apperrors.UserInputf(
			"%d ticket(s) in the current range have not been drawn yet. Draw them with a batch before appending.",
			len(undrawn))
	}

	added, err := e.arrange(cur.Mode, TicketRange(cur.EndNumber+1, newEnd))
	if err != nil {
		return nil, err
	}

	next := cur.Clone()
	next.EndNumber = newEnd
	next.GeneratedOrder = append(next.GeneratedOrder, added...)
	next.OrderLocked = len(next.GeneratedOrder) > 0
	return next, nil
}

// ExtendRange raises the range end without drawing anything.
func ExtendRange(cur *models.RaffleState, newEnd int) (*models.RaffleState, error) {
	if err := validateNewEnd(cur, newEnd); err != nil {
		return nil, err
	}
	next := cur.Clone()
	next.EndNumber = newEnd
	return next, nil
}

// Batch draws BatchSize tickets from the undrawn pool and appends them to the
// draw order. Once a range exists its start is fixed and its end may only grow.
func (e *Engine) Batch(cur *models.RaffleState, in BatchInput) (*models.RaffleState, error) {
	start, end := in.StartNumber, in.EndNumber
	if cur.HasRange() {
		if start != cur.StartNumber {
			return nil, apperrors.UserInputf("Start number is locked at %d.", cur.StartNumber)
		}
		if end < cur.EndNumber {
			return nil, apperrors.UserInputf("End number cannot be decreased. Choose a number greater than %d.", cur.EndNumber-1)
		}
		if end > models.MaxTicketNumber {
			return nil, ceilingError()
		}
	} else if err := ValidateRange(start, end); err != nil {
		return nil, err
	}

	if in.BatchSize <= 0 {
		return nil, apperrors.UserInput("Batch size must be a positive integer.")
	}

	pool := UndrawnPool(start, end, cur.GeneratedOrder)
	if len(pool) == 0 {
		return nil, apperrors.UserInput("All tickets in this range have already been drawn.")
	}
	if in.BatchSize > len(pool) {
		return nil, apperrors.UserInputf("Batch size (%d) exceeds the number of undrawn tickets (%d).", in.BatchSize, len(pool))
	}

	var picked []int
	if cur.Mode == models.ModeSequential {
		picked = pool[:in.BatchSize]
	} else {
		var err error
		if picked, err = random.Sample(e.shuffler, pool, in.BatchSize); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to sample batch")
		}
	}

	next := cur.Clone()
	next.StartNumber = start
	next.EndNumber = end
	next.GeneratedOrder = append(next.GeneratedOrder, picked...)
	next.OrderLocked = true
	return next, nil
}

// SetMode records the mode. Before the first draw of an existing range the
// whole order is regenerated in the new mode; after it, drawn positions never
// move and only later draws follow the new mode.
func (e *Engine) SetMode(cur *models.RaffleState, mode models.Mode) (*models.RaffleState, error) {
	if !mode.Valid() {
		return nil, invalidMode()
	}
	next := cur.Clone()
	next.Mode = mode
	if !cur.HasRange() || len(cur.GeneratedOrder) > 0 {
		return next, nil
	}

	order, err := e.arrange(mode, TicketRange(cur.StartNumber, cur.EndNumber))
	if err != nil {
		return nil, err
	}
	next.GeneratedOrder = order
	next.OrderLocked = len(order) > 0
	next.CurrentlyServing = nil
	next.TicketStatus = map[int]models.TicketStatus{}
	next.CalledAt = map[int]int64{}
	return next, nil
}

// SetServing points the serving pointer at value, or clears it when value is nil.
func SetServing(cur *models.RaffleState, value *int, now int64) (*models.RaffleState, error) {
	if !cur.HasRange() {
		return nil, noRange()
	}
	next := cur.Clone()
	if value == nil {
		next.CurrentlyServing = nil
		return next, nil
	}
	v := *value
	if !cur.InRange(v) {
		return nil, outOfRange(cur, v)
	}
	if cur.IndexOf(v) < 0 {
		return nil, apperrors.UserInputf("Ticket %d has not been drawn yet.", v)
	}
	next.CurrentlyServing = &v
	next.CalledAt[v] = now
	return next, nil
}

// Advance moves the serving pointer one eligible step. changed is false when
// there is nowhere to go; the state is then returned as is.
func Advance(cur *models.RaffleState, dir models.Direction, now int64) (next *models.RaffleState, changed bool, err error) {
	if dir != models.DirectionNext && dir != models.DirectionPrev {
		return nil, false, apperrors.UserInput(`Direction must be "next" or "prev".`)
	}

	target := -1
	if idx := cur.ServingIndex(); idx < 0 {
		// prev with nothing serving also reveals the start of the order
		target = nextEligible(cur, 0)
	} else if dir == models.DirectionNext {
		target = nextEligible(cur, idx+1)
	} else {
		target = prevEligible(cur, idx-1)
	}
	if target < 0 {
		return cur, false, nil
	}

	next = cur.Clone()
	ticket := cur.GeneratedOrder[target]
	next.CurrentlyServing = &ticket
	next.CalledAt[ticket] = now
	return next, true, nil
}

// MarkReturned flags a ticket as returned. Returning the ticket being served
// moves the pointer to the next non-returned ticket after it, or clears it.
func MarkReturned(cur *models.RaffleState, ticket int, now int64) (*models.RaffleState, error) {
	if len(cur.GeneratedOrder) == 0 {
		return nil, apperrors.UserInput("No tickets have been generated yet.")
	}
	if ticket <= 0 {
		return nil, notPositive()
	}
	if !cur.InRange(ticket) {
		return nil, outOfRange(cur, ticket)
	}

	next := cur.Clone()
	next.TicketStatus[ticket] = models.TicketReturned
	if cur.CurrentlyServing == nil || *cur.CurrentlyServing != ticket {
		return next, nil
	}

	target := nextEligible(next, cur.IndexOf(ticket)+1)
	if target < 0 {
		next.CurrentlyServing = nil
		return next, nil
	}
	following := next.GeneratedOrder[target]
	next.CurrentlyServing = &following
	next.CalledAt[following] = now
	return next, nil
}

// MarkUnclaimed flags an already-called ticket as unclaimed.
func MarkUnclaimed(cur *models.RaffleState, ticket int) (*models.RaffleState, error) {
	if ticket <= 0 {
		return nil, notPositive()
	}
	servingIdx := cur.ServingIndex()
	if servingIdx < 0 {
		return nil, apperrors.UserInput("No ticket is currently being served.")
	}
	idx := cur.IndexOf(ticket)
	if idx < 0 {
		return nil, apperrors.UserInputf("Ticket %d is not in the draw order.", ticket)
	}
	if idx > servingIdx {
		return nil, apperrors.UserInputf("Ticket %d has not been called yet.", ticket)
	}

	next := cur.Clone()
	next.TicketStatus[ticket] = models.TicketUnclaimed
	return next, nil
}

// Reset returns to defaults, keeping the operating hours and timezone.
func Reset(cur *models.RaffleState) *models.RaffleState {
	keep := cur.Clone()
	next := models.DefaultState()
	next.OperatingHours = keep.OperatingHours
	next.Timezone = keep.Timezone
	return next
}

func SetDisplayURL(cur *models.RaffleState, url string) *models.RaffleState {
	next := cur.Clone()
	next.DisplayURL = url
	return next
}

func SetOperatingHours(cur *models.RaffleState, hours []models.OperatingWindow, timezone string) *models.RaffleState {
	next := cur.Clone()
	next.OperatingHours = slices.Clone(hours)
	if next.OperatingHours == nil {
		next.OperatingHours = []models.OperatingWindow{}
	}
	next.Timezone = timezone
	return next
}

// ValidateRange checks the bounds of a fresh range.
func ValidateRange(start, end int) error {
	if start <= 0 {
		return apperrors.UserInput("Start number must be a positive integer.")
	}
	if end <= 0 {
		return apperrors.UserInput("End number must be a positive integer.")
	}
	if start > models.MaxTicketNumber || end > models.MaxTicketNumber {
		return ceilingError()
	}
	if end <= start {
		return apperrors.UserInput("End number must be greater than start number.")
	}
	return nil
}

// TicketRange returns the contiguous tickets [start, end].
func TicketRange(start, end int) []int {
	if end < start {
		return []int{}
	}
	out := make([]int, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, n)
	}
	return out
}

// UndrawnPool returns, in ascending order, the tickets of [start, end] that
// are not yet in order.
func UndrawnPool(start, end int, order []int) []int {
	if start <= 0 || end < start {
		return []int{}
	}
	drawn := make(map[int]struct{}, len(order))
	for _, n := range order {
		drawn[n] = struct{}{}
	}
	pool := make([]int, 0, end-start+1)
	for n := start; n <= end; n++ {
		if _, ok := drawn[n]; !ok {
			pool = append(pool, n)
		}
	}
	return pool
}

// CheckInvariants verifies the structural invariants every persisted state
// must satisfy.
func CheckInvariants(s *models.RaffleState) error {
	seen := make(map[int]struct{}, len(s.GeneratedOrder))
	for _, n := range s.GeneratedOrder {
		if _, dup := seen[n]; dup {
			return fmt.Errorf("ticket %d appears twice in the draw order", n)
		}
		seen[n] = struct{}{}
		if !s.InRange(n) {
			return fmt.Errorf("ticket %d lies outside %d-%d", n, s.StartNumber, s.EndNumber)
		}
	}
	if s.OrderLocked != (len(s.GeneratedOrder) > 0) {
		return fmt.Errorf("orderLocked=%t with %d drawn tickets", s.OrderLocked, len(s.GeneratedOrder))
	}
	if s.CurrentlyServing != nil {
		if _, ok := seen[*s.CurrentlyServing]; !ok {
			return fmt.Errorf("currently serving %d is not in the draw order", *s.CurrentlyServing)
		}
	}
	return nil
}

func (e *Engine) arrange(mode models.Mode, tickets []int) ([]int, error) {
	if mode == models.ModeSequential {
		return tickets, nil
	}
	if err := e.shuffler.Shuffle(tickets); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to shuffle tickets")
	}
	return tickets, nil
}

func validateNewEnd(cur *models.RaffleState, newEnd int) error {
	if !cur.HasRange() {
		return noRange()
	}
	if newEnd <= 0 {
		return apperrors.UserInput("End number must be a positive integer.")
	}
	if newEnd > models.MaxTicketNumber {
		return ceilingError()
	}
	if newEnd <= cur.EndNumber {
		return apperrors.UserInputf("New end number must be greater than the current end number (%d).", cur.EndNumber)
	}
	return nil
}

func nextEligible(s *models.RaffleState, from int) int {
	for i := max(from, 0); i < len(s.GeneratedOrder); i++ {
		if !s.IsReturned(s.GeneratedOrder[i]) {
			return i
		}
	}
	return -1
}

func prevEligible(s *models.RaffleState, from int) int {
	for i := min(from, len(s.GeneratedOrder)-1); i >= 0; i-- {
		if !s.IsReturned(s.GeneratedOrder[i]) {
			return i
		}
	}
	return -1
}

func noRange() error {
	return apperrors.UserInput("No ticket range has been set.")
}

func notPositive() error {
	return apperrors.UserInput("Ticket number must be a positive integer.")
}

func invalidMode() error {
	return apperrors.UserInput(`Mode must be "random" or "sequential".`)
}

func ceilingError() error {
	return apperrors.UserInputf("Ticket numbers cannot exceed %d.", models.MaxTicketNumber)
}

func outOfRange(s *models.RaffleState, n int) error {
	return apperrors.UserInputf("Ticket %d is outside the range %d-%d.", n, s.StartNumber, s.EndNumber)
}
