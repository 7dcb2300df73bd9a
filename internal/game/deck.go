package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"

	"github.com/jason-s-yu/blackjack/internal/models"
)

const (
	RankAce   = "Ace"
	RankJack  = "Jack"
	RankQueen = "Queen"
	RankKing  = "King"
)

var (
	suits = []string{"Hearts", "Diamonds", "Clubs", "Spades"}
	ranks = []string{RankAce, "2", "3", "4", "5", "6", "7", "8", "9", "10", RankJack, RankQueen, RankKing}
)

// RankValue returns the nominal value of a rank, counting an Ace as 11.
func RankValue(rank string) int {
	switch rank {
	case RankAce:
		return 11
	case RankJack, RankQueen, RankKing, "10":
		return 10
	case "2", "3", "4", "5", "6", "7", "8", "9":
		return int(rank[0] - '0')
	}
	return 0
}

// Deck is the shoe a round draws from. Index 0 is the top of the shoe.
type Deck struct {
	cards []models.Card
	decks int
	rng   *rand.Rand
}

// NewRand returns a generator seeded from the OS entropy source.
func NewRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to the runtime source.
		binary.LittleEndian.PutUint64(seed[:], rand.Uint64())
	}
	return rand.New(rand.NewChaCha8(seed))
}

// NewDeck builds a shoe of the given number of 52-card decks, shuffled with rng.
func NewDeck(decks int, rng *rand.Rand) *Deck {
	if decks < 1 {
		decks = 1
	}
	if rng == nil {
		rng = NewRand()
	}
	d := &Deck{decks: decks, rng: rng}
	d.refill()
	return d
}

// NewStackedDeck returns a shoe that deals exactly the given cards in order.
// Once exhausted it continues with a freshly shuffled single deck.
func NewStackedDeck(cards []models.Card) *Deck {
	cp := make([]models.Card, len(cards))
	copy(cp, cards)
	return &Deck{cards: cp, decks: 1}
}

func (d *Deck) refill() {
	if d.rng == nil {
		d.rng = NewRand()
	}
	cards := make([]models.Card, 0, d.decks*len(suits)*len(ranks))
	for i := 0; i < d.decks; i++ {
		for _, suit := range suits {
			for _, rank := range ranks {
				cards = append(cards, models.Card{Rank: rank, Suit: suit})
			}
		}
	}
	d.rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	d.cards = cards
}

// Draw pops the top card, reshuffling a fresh shoe when empty.
func (d *Deck) Draw() models.Card {
	if len(d.cards) == 0 {
		d.refill()
	}
	c := d.cards[0]
	d.cards = d.cards[1:]
	return c
}

// Remaining is the number of cards left before a reshuffle.
func (d *Deck) Remaining() int {
	return len(d.cards)
}

// Cards returns a copy of the remaining shoe in draw order.
func (d *Deck) Cards() []models.Card {
	cp := make([]models.Card, len(d.cards))
	copy(cp, d.cards)
	return cp
}
