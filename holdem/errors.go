package holdem

import "errors"

var (
	// ErrHandEnded is returned when a command targets a hand that has
	// already reached Complete.
	ErrHandEnded = errors.New("holdem: hand already ended")
	// ErrOutOfTurn is returned when a seat acts while it is not their turn.
	ErrOutOfTurn = errors.New("holdem: action out of turn")
	// ErrMalformed is returned for structurally invalid commands, e.g. an
	// unknown action kind.
	ErrMalformed = errors.New("holdem: malformed action")
	// ErrInsufficientChips is returned when a seat with an empty stack
	// tries to call.
	ErrInsufficientChips = errors.New("holdem: insufficient chips")
	// ErrTableFull is returned when SitDown targets a chair that is out of
	// range or already occupied.
	ErrTableFull = errors.New("holdem: table full")
	// ErrTableInProgress is returned when StartHand is requested while a
	// hand is already running.
	ErrTableInProgress = errors.New("holdem: hand already in progress")
	// ErrHandInProgress is returned when a seat mutation (stand up) is
	// requested mid-hand for a seat that cannot be safely removed yet.
	ErrHandInProgress = errors.New("holdem: hand in progress")
	// ErrNotEnoughPlayers is returned when StartHand cannot find at least
	// MinPlayers seats with a positive stack.
	ErrNotEnoughPlayers = errors.New("holdem: not enough players with chips")
)

// IllegalActionError reports why a PlayerAction was rejected. It carries no
// exported fields beyond Reason so callers can surface it directly to the
// submitter without leaking internal state.
type IllegalActionError struct {
	Reason string
}

func (e *IllegalActionError) Error() string { return "holdem: illegal action: " + e.Reason }

func illegal(reason string) error { return &IllegalActionError{Reason: reason} }

// InvalidStateError marks a fatal invariant violation. Its presence means
// the table must be frozen and quarantined by the dispatcher.
type InvalidStateError string

func (e InvalidStateError) Error() string { return "holdem: invalid state: " + string(e) }
