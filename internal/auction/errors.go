package auction

import "errors"

// Errors returned by room operations. They are safe to show to users verbatim.
var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomAlreadyExists    = errors.New("room already exists")
	ErrTeamNotFound         = errors.New("team not found")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrPlayerAlreadySold    = errors.New("player already sold")
	ErrSessionAlreadyActive = errors.New("bidding session already active")
	ErrSessionNotActive     = errors.New("bidding session is not active")
	ErrDuplicateBid         = errors.New("team has already placed a blind bid")
	ErrBidTooLow            = errors.New("bid must exceed the current highest bid")
	ErrBelowBasePrice       = errors.New("bid is below base price")
	ErrBudgetExceeded       = errors.New("insufficient budget")
	ErrRosterFull           = errors.New("roster is full")
	ErrAuctionComplete      = errors.New("auction complete: no players left to dispatch")
)
