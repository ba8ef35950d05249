package holdem

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"pokertable/card"
	"pokertable/eval"
	"pokertable/pot"
)

// Table owns one table's full state and drives it through a single hand's
// lifecycle. It is not safe for concurrent use by multiple goroutines
// without external serialization; the dispatcher package provides that.
type Table struct {
	cfg Config
	rng *rand.Rand

	mu sync.Mutex

	playersByChair map[uint16]*Player
	chairNodes     map[uint16]*PlayerNode

	handNumber uint64
	phase      Phase

	deck      *card.Deck
	community card.CardList
	burned    card.CardList

	dealerNode *PlayerNode
	sbNode     *PlayerNode
	bbNode     *PlayerNode
	curNode    *PlayerNode

	currentBet         int64
	lastRaiseIncrement int64
	raiserChair        uint16

	ended  bool
	frozen bool

	lastShowdown *ShowdownResult
}

// NewTable constructs a table ready to seat players.
func NewTable(cfg Config) (*Table, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	t := &Table{
		cfg:            cfg,
		rng:            rand.New(rand.NewSource(seed)),
		playersByChair: make(map[uint16]*Player, cfg.MaxPlayers),
		chairNodes:     make(map[uint16]*PlayerNode, cfg.MaxPlayers),
		phase:          PhaseLobby,
		raiserChair:    InvalidChair,
	}
	return t, nil
}

// SitDown seats a player with an initial stack. It fails with ErrTableFull
// if the chair is out of range or already occupied.
func (t *Table) SitDown(chair uint16, userID uint64, stack int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(chair) >= t.cfg.MaxPlayers {
		return ErrTableFull
	}
	if t.playersByChair[chair] != nil {
		return ErrTableFull
	}
	if stack < 0 {
		return fmt.Errorf("holdem: stack must be >= 0")
	}
	t.playersByChair[chair] = &Player{
		Chair:  chair,
		UserID: userID,
		stack:  stack,
		status: StatusSittingOut,
	}
	return nil
}

// StandUp releases a chair between hands. It fails with ErrHandInProgress
// if a hand is currently running; callers should convert the seat to
// SittingOut via LeaveDuringHand instead.
func (t *Table) StandUp(chair uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.playersByChair[chair] == nil {
		return fmt.Errorf("holdem: chair %d is empty", chair)
	}
	if t.phase != PhaseLobby && t.phase != PhaseComplete {
		return ErrHandInProgress
	}

	delete(t.playersByChair, chair)
	delete(t.chairNodes, chair)
	if t.dealerNode != nil && t.dealerNode.ChairID == chair {
		t.dealerNode = nil
	}
	return nil
}

// LeaveDuringHand takes a seat out of the hand in progress: a seat that is
// still Active or AllIn is folded (an AllIn seat forfeits its claim on the
// pot), and the seat is flipped to SittingOut once the hand completes. The
// chair is not released; callers must call StandUp afterward to free it. It
// returns a non-nil ShowdownResult if folding this seat ends the hand.
func (t *Table) LeaveDuringHand(chair uint16) (*ShowdownResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.playersByChair[chair]
	if p == nil {
		return nil, fmt.Errorf("holdem: chair %d is empty", chair)
	}
	if t.phase == PhaseLobby || t.phase == PhaseComplete {
		p.status = StatusSittingOut
		return nil, nil
	}
	wasCurrent := t.curNode != nil && t.curNode.ChairID == chair
	wasFolding := p.status == StatusActive || p.status == StatusAllIn
	if wasFolding {
		p.status = StatusFolded
		p.hasActedThisRound = true
	}
	p.pendingLeave = true

	if wasFolding {
		if remaining := t.remainingNonFolded(); len(remaining) == 1 {
			return t.awardUncontested(remaining[0])
		}
	}
	if wasCurrent {
		t.advanceAfterAction()
		if t.roundComplete() {
			return t.onRoundComplete()
		}
	}
	return nil, nil
}

// applyPendingLeaves flips any seat that asked to leave mid-hand to
// SittingOut now that the hand has finished, so the next StartHand skips it
// and a later StandUp is safe.
func (t *Table) applyPendingLeaves() {
	for _, p := range t.playersByChair {
		if p.pendingLeave {
			p.status = StatusSittingOut
			p.pendingLeave = false
		}
	}
}

func (t *Table) Player(chair uint16) *Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playersByChair[chair]
}

func (t *Table) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Table) CurrentTurnChair() (uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.curNode == nil {
		return InvalidChair, false
	}
	return t.curNode.ChairID, true
}

// StartHand begins a new hand: rotates the button, posts blinds, shuffles,
// and deals hole cards. It requires at least MinPlayers seats with a
// positive stack and the table to be in Lobby or Complete.
func (t *Table) StartHand() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return InvalidStateError("table is frozen")
	}
	if t.phase != PhaseLobby && t.phase != PhaseComplete {
		return ErrTableInProgress
	}

	playable := t.activeChairsAscending()
	if len(playable) < t.cfg.MinPlayers {
		return ErrNotEnoughPlayers
	}

	t.handNumber++
	t.ended = false
	t.lastShowdown = nil
	t.community = nil
	t.burned = nil
	t.currentBet = 0
	t.lastRaiseIncrement = t.cfg.BigBlind
	t.raiserChair = InvalidChair

	// Every seated chair occupies a slot in the dealer rotation, including
	// a broke one sitting on a zero stack between buy-ins: the button still
	// moves exactly one physical seat each hand and does not hop over it.
	// Only chairs with a stack actually play the hand.
	seated := t.seatedChairsAscending()
	for _, chair := range seated {
		p := t.playersByChair[chair]
		if p.stack > 0 {
			p.resetForNewHand()
		} else {
			p.sitOutForNewHand()
		}
	}

	t.buildRing(seated)

	if err := t.selectDealer(seated); err != nil {
		return err
	}
	t.assignBlindsAndFirstActor()

	if err := t.buildDeck(); err != nil {
		return err
	}
	t.dealHoleCards()

	t.postBlinds()

	t.phase = PhasePreFlop
	t.startRound()

	if t.bettingClosedByAllIns() {
		_, err := t.runOutBoardAndShowdown()
		return err
	}
	return nil
}

// activeChairsAscending returns every seated chair with a positive stack,
// i.e. the seats eligible to actually play the next hand.
func (t *Table) activeChairsAscending() []uint16 {
	chairs := make([]uint16, 0, len(t.playersByChair))
	for chair, p := range t.playersByChair {
		if p.stack > 0 {
			chairs = append(chairs, chair)
		}
	}
	sort.Slice(chairs, func(i, j int) bool { return chairs[i] < chairs[j] })
	return chairs
}

// seatedChairsAscending returns every occupied chair regardless of stack,
// used to build the dealer-rotation ring so a broke seat still counts as a
// physical slot rather than being skipped over.
func (t *Table) seatedChairsAscending() []uint16 {
	chairs := make([]uint16, 0, len(t.playersByChair))
	for chair := range t.playersByChair {
		chairs = append(chairs, chair)
	}
	sort.Slice(chairs, func(i, j int) bool { return chairs[i] < chairs[j] })
	return chairs
}

func (t *Table) buildRing(chairs []uint16) {
	t.chairNodes = make(map[uint16]*PlayerNode, len(chairs))
	var first, last *PlayerNode
	for _, chair := range chairs {
		node := &PlayerNode{ChairID: chair, Player: t.playersByChair[chair]}
		t.chairNodes[chair] = node
		if first == nil {
			first = node
		}
		if last != nil {
			last.Next = node
		}
		last = node
	}
	if first != nil {
		last.Next = first
	}
}

func (t *Table) selectDealer(chairs []uint16) error {
	if t.cfg.ForcedDealerChair != nil {
		node, ok := t.chairNodes[*t.cfg.ForcedDealerChair]
		if !ok {
			return fmt.Errorf("holdem: forced dealer chair %d is not active", *t.cfg.ForcedDealerChair)
		}
		t.dealerNode = node
		return nil
	}
	if t.dealerNode == nil {
		t.dealerNode = t.chairNodes[chairs[0]]
		return nil
	}
	// Advance the button one seat clockwise from the previous dealer's
	// chair; a seated chair with no stack still counts as a seat. If that
	// chair is no longer seated, the button restarts at the lowest chair.
	prevChair := t.dealerNode.ChairID
	if node, ok := t.chairNodes[prevChair]; ok {
		t.dealerNode = node.Next
		return nil
	}
	t.dealerNode = t.chairNodes[chairs[0]]
	return nil
}

func (t *Table) assignBlindsAndFirstActor() {
	t.dealerNode.Player.role = RoleDealer
	if len(t.chairNodes) == 2 {
		t.sbNode = t.dealerNode
		t.bbNode = t.dealerNode.Next
		t.curNode = t.sbNode
	} else {
		// A broke seat can sit physically between the button and the blinds
		// -- skip it when assigning the roles that actually require chips.
		t.sbNode = t.nextPlayable(t.dealerNode)
		t.bbNode = t.nextPlayable(t.sbNode)
		t.curNode = t.nextPlayable(t.bbNode)
	}
	t.sbNode.Player.role = RoleSmallBlind
	t.bbNode.Player.role = RoleBigBlind
}

// nextPlayable walks forward from node, skipping seats with no stack, and
// returns the first one found. It falls back to node itself if a full lap
// finds nothing else, which cannot happen once StartHand's MinPlayers check
// has passed.
func (t *Table) nextPlayable(node *PlayerNode) *PlayerNode {
	n := node.Next
	for n.Player.stack <= 0 && n != node {
		n = n.Next
	}
	return n
}

func (t *Table) buildDeck() error {
	if t.cfg.DeckOverride != nil {
		t.deck = card.NewDeckFromOrder(t.cfg.DeckOverride)
		return nil
	}
	t.deck = card.NewShuffledDeck(t.rng)
	return nil
}

// dealHoleCards deals two cards to each active player in two round-robin
// passes beginning left of the dealer.
func (t *Table) dealHoleCards() {
	deal := func(n *PlayerNode) {
		if n.Player.stack <= 0 {
			return
		}
		cards, _ := t.deck.Draw(1)
		n.Player.addHoleCards(cards...)
	}
	t.dealerNode.Next.WalkAll(deal)
	t.dealerNode.Next.WalkAll(deal)
}

func (t *Table) postBlinds() {
	t.sbNode.Player.commit(t.cfg.SmallBlind)
	t.bbNode.Player.commit(t.cfg.BigBlind)
	t.sbNode.Player.hasActedThisRound = false
	t.bbNode.Player.hasActedThisRound = false
	t.currentBet = t.cfg.BigBlind
	t.lastRaiseIncrement = t.cfg.BigBlind
	t.raiserChair = t.bbNode.ChairID
}

func (t *Table) startRound() {
	for _, node := range t.chairNodes {
		if node.Player.status == StatusActive {
			node.Player.hasActedThisRound = false
		}
	}
	if t.phase != PhasePreFlop {
		t.currentBet = 0
		t.lastRaiseIncrement = t.cfg.BigBlind
		t.raiserChair = InvalidChair
		for _, node := range t.chairNodes {
			node.Player.committedThisRound = 0
		}
	}
}

// PlayerAction applies an action for the seat whose turn it currently is.
// amount is the seat's desired total committedThisRound after a Raise;
// it is ignored for Fold, Check, Call, and AllIn.
func (t *Table) PlayerAction(chair uint16, kind ActionKind, amount int64) (*ShowdownResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return nil, InvalidStateError("table is frozen")
	}
	if t.ended {
		return nil, ErrHandEnded
	}
	if t.curNode == nil || t.curNode.ChairID != chair {
		return nil, ErrOutOfTurn
	}

	p := t.curNode.Player
	if err := t.applyAction(p, kind, amount); err != nil {
		return nil, err
	}

	if p.status == StatusFolded {
		if remaining := t.remainingNonFolded(); len(remaining) == 1 {
			return t.awardUncontested(remaining[0])
		}
	}

	t.advanceAfterAction()

	if t.roundComplete() {
		return t.onRoundComplete()
	}
	return nil, nil
}

func (t *Table) applyAction(p *Player, kind ActionKind, amount int64) error {
	switch kind {
	case ActionFold:
		p.status = StatusFolded
		p.hasActedThisRound = true
		return nil

	case ActionCheck:
		if p.committedThisRound != t.currentBet {
			return illegal("cannot check while facing a bet")
		}
		p.hasActedThisRound = true
		return nil

	case ActionCall:
		if t.currentBet <= p.committedThisRound {
			return illegal("nothing to call")
		}
		if p.stack <= 0 {
			return ErrInsufficientChips
		}
		toCall := t.currentBet - p.committedThisRound
		p.commit(toCall)
		p.hasActedThisRound = true
		return nil

	case ActionRaise:
		if amount < t.currentBet+t.lastRaiseIncrement {
			return illegal("raise below minimum")
		}
		if amount > p.committedThisRound+p.stack {
			return illegal("raise exceeds available chips")
		}
		delta := amount - p.committedThisRound
		p.commit(delta)
		t.lastRaiseIncrement = amount - t.currentBet
		t.currentBet = amount
		t.raiserChair = p.Chair
		t.reopenActionExcept(p.Chair)
		p.hasActedThisRound = true
		return nil

	case ActionAllIn:
		if p.stack <= 0 {
			return illegal("no chips left to push all-in")
		}
		p.commit(p.stack)
		increment := p.committedThisRound - t.currentBet
		if p.committedThisRound > t.currentBet && increment >= t.lastRaiseIncrement {
			t.lastRaiseIncrement = increment
			t.currentBet = p.committedThisRound
			t.raiserChair = p.Chair
			t.reopenActionExcept(p.Chair)
		}
		// A short all-in (committedThisRound <= currentBet, or an
		// increment below the minimum) leaves currentBet untouched: it
		// does not reopen action and does not force already-acted seats
		// to match the extra amount. The excess simply forms its own
		// pot layer via committedThisHand.
		p.hasActedThisRound = true
		return nil

	default:
		return ErrMalformed
	}
}

func (t *Table) reopenActionExcept(chair uint16) {
	for _, node := range t.chairNodes {
		if node.ChairID == chair {
			continue
		}
		if node.Player.status == StatusActive {
			node.Player.hasActedThisRound = false
		}
	}
}

// advanceAfterAction moves curNode to the next seat that still owes an
// action, skipping Folded and AllIn seats.
func (t *Table) advanceAfterAction() {
	if t.curNode == nil {
		return
	}
	next := t.curNode.Next.WalkOnce(func(n *PlayerNode) bool {
		if n.Player.status != StatusActive {
			return false
		}
		return !n.Player.hasActedThisRound || n.Player.committedThisRound < t.currentBet
	})
	t.curNode = next
}

func (t *Table) roundComplete() bool {
	if t.curNode == nil {
		return true
	}
	for _, node := range t.chairNodes {
		if node.Player.status != StatusActive {
			continue
		}
		if !node.Player.hasActedThisRound || node.Player.committedThisRound != t.currentBet {
			return false
		}
	}
	return true
}

func (t *Table) remainingNonFolded() []uint16 {
	out := make([]uint16, 0, len(t.chairNodes))
	for chair, node := range t.chairNodes {
		if node.Player.status == StatusActive || node.Player.status == StatusAllIn {
			out = append(out, chair)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Table) bettingClosedByAllIns() bool {
	activeCanAct := 0
	for _, node := range t.chairNodes {
		if node.Player.status == StatusActive {
			activeCanAct++
		}
	}
	return activeCanAct <= 1 && len(t.remainingNonFolded()) > 1
}

// onRoundComplete deals the next street or proceeds to showdown.
func (t *Table) onRoundComplete() (*ShowdownResult, error) {
	remaining := t.remainingNonFolded()
	if len(remaining) == 1 {
		return t.awardUncontested(remaining[0])
	}

	if t.bettingClosedByAllIns() || t.phase == PhaseRiver {
		return t.runOutBoardAndShowdown()
	}

	switch t.phase {
	case PhasePreFlop:
		t.burnAndDeal(1, 3)
		t.phase = PhaseFlop
	case PhaseFlop:
		t.burnAndDeal(1, 1)
		t.phase = PhaseTurn
	case PhaseTurn:
		t.burnAndDeal(1, 1)
		t.phase = PhaseRiver
	}
	t.startRound()
	t.curNode = t.firstActiveLeftOfDealer()
	return nil, nil
}

func (t *Table) firstActiveLeftOfDealer() *PlayerNode {
	return t.dealerNode.Next.WalkOnce(func(n *PlayerNode) bool {
		return n.Player.status == StatusActive
	})
}

func (t *Table) burnAndDeal(burn, deal int) {
	if burn > 0 {
		b, _ := t.deck.Draw(burn)
		t.burned = append(t.burned, b...)
	}
	if deal > 0 {
		d, _ := t.deck.Draw(deal)
		t.community = append(t.community, d...)
	}
}

// runOutBoardAndShowdown deals any remaining community cards without
// further betting and resolves the pot.
func (t *Table) runOutBoardAndShowdown() (*ShowdownResult, error) {
	for len(t.community) < 3 {
		t.burnAndDeal(1, 3-len(t.community))
	}
	for len(t.community) < 4 {
		t.burnAndDeal(1, 1)
	}
	for len(t.community) < 5 {
		t.burnAndDeal(1, 1)
	}
	t.phase = PhaseShowdown
	return t.settleShowdown()
}

func (t *Table) settleShowdown() (*ShowdownResult, error) {
	committed := make(map[uint16]int64, len(t.playersByChair))
	folded := make(map[uint16]bool, len(t.playersByChair))
	strengths := make(map[uint16]eval.Key)
	descriptions := make(map[uint16]string)
	seatOrder := make([]uint16, 0, len(t.playersByChair))

	for chair, p := range t.playersByChair {
		if p.committedThisHand == 0 && p.status != StatusActive && p.status != StatusAllIn {
			continue
		}
		committed[chair] = p.committedThisHand
		folded[chair] = p.status == StatusFolded
		seatOrder = append(seatOrder, chair)
		if p.status != StatusFolded {
			cards := append(append(card.CardList{}, p.holeCards...), t.community...)
			key, err := eval.EvaluateCached(cards)
			if err != nil {
				return nil, InvalidStateError("showdown evaluation failed: " + err.Error())
			}
			strengths[chair] = key
			descriptions[chair] = eval.Describe(key)
		}
	}
	sort.Slice(seatOrder, func(i, j int) bool { return seatOrder[i] < seatOrder[j] })

	layers := pot.BuildLayers(committed, folded)
	payouts, results, err := pot.Settle(layers, strengths, t.dealerNode.ChairID, seatOrder)
	if err != nil {
		return nil, InvalidStateError("pot settlement failed: " + err.Error())
	}

	if err := t.applyPayoutsAndCheckConservation(committed, payouts); err != nil {
		t.frozen = true
		return nil, err
	}

	t.phase = PhaseComplete
	t.ended = true
	t.curNode = nil
	t.applyPendingLeaves()
	res := &ShowdownResult{
		HandNumber:   t.handNumber,
		Descriptions: descriptions,
		Payouts:      payouts,
		Layers:       results,
	}
	t.lastShowdown = res
	return res, nil
}

// awardUncontested ends the hand immediately when only one non-folded
// player remains, returning every chip committed this hand to them without
// invoking the evaluator.
func (t *Table) awardUncontested(chair uint16) (*ShowdownResult, error) {
	total := int64(0)
	for _, p := range t.playersByChair {
		total += p.committedThisHand
	}
	winner := t.playersByChair[chair]
	winner.award(total)

	t.phase = PhaseComplete
	t.ended = true
	t.curNode = nil
	t.applyPendingLeaves()
	res := &ShowdownResult{
		HandNumber: t.handNumber,
		Payouts:    map[uint16]int64{chair: total},
	}
	t.lastShowdown = res
	return res, nil
}

func (t *Table) applyPayoutsAndCheckConservation(committed map[uint16]int64, payouts map[uint16]int64) error {
	var totalCommitted, totalPayout int64
	for _, amt := range committed {
		totalCommitted += amt
	}
	for chair, amt := range payouts {
		totalPayout += amt
		if p := t.playersByChair[chair]; p != nil {
			p.award(amt)
		}
	}
	if totalCommitted != totalPayout {
		return InvalidStateError(fmt.Sprintf("pot conservation violated: committed=%d payouts=%d", totalCommitted, totalPayout))
	}
	return nil
}

// TimeoutExpired synthesizes an action for a seat that missed its deadline:
// Check if legal, otherwise Fold.
func (t *Table) TimeoutExpired(chair uint16) (*ShowdownResult, error) {
	t.mu.Lock()
	isCurrent := t.curNode != nil && t.curNode.ChairID == chair
	var committedThisRound, currentBet int64
	if isCurrent {
		committedThisRound = t.curNode.Player.committedThisRound
		currentBet = t.currentBet
	}
	t.mu.Unlock()

	if !isCurrent {
		return nil, ErrOutOfTurn
	}
	if committedThisRound == currentBet {
		return t.PlayerAction(chair, ActionCheck, 0)
	}
	return t.PlayerAction(chair, ActionFold, 0)
}

// LegalActions is a pure projection of which ActionKinds chair may submit
// right now, and the minimum total Raise amount.
func (t *Table) LegalActions(chair uint16) ([]ActionKind, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ended {
		return nil, 0, ErrHandEnded
	}
	if t.curNode == nil || t.curNode.ChairID != chair {
		return nil, 0, nil
	}
	p := t.curNode.Player
	out := []ActionKind{ActionFold}
	if p.committedThisRound == t.currentBet {
		out = append(out, ActionCheck)
	} else if p.stack > 0 {
		out = append(out, ActionCall)
	}
	minRaiseTo := t.currentBet + t.lastRaiseIncrement
	if p.stack > 0 {
		out = append(out, ActionAllIn)
		if p.committedThisRound+p.stack >= minRaiseTo {
			out = append(out, ActionRaise)
		}
	}
	return out, minRaiseTo, nil
}

// LastShowdown returns the most recent hand's settlement, or nil if no
// hand has completed yet on this table.
func (t *Table) LastShowdown() *ShowdownResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastShowdown
}

// ShowdownResult describes how a hand resolved, whether by showdown or by
// every other player folding.
type ShowdownResult struct {
	HandNumber   uint64
	Descriptions map[uint16]string
	Payouts      map[uint16]int64
	Layers       []pot.LayerResult
}
