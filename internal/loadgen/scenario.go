// Package loadgen generates a random mix of lending API calls for load and
// soak runs.
package loadgen

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/peace-bassey/BitTrust/internal/lending"
)

// Kind is one API interaction.
type Kind int

const (
	Quote Kind = iota
	InitializeScore
	RequestLoan
	ReadScore
	ReadLoan
	ReadTreasury
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Quote:
		return "quote"
	case InitializeScore:
		return "initialize_score"
	case RequestLoan:
		return "request_loan"
	case ReadScore:
		return "read_score"
	case ReadLoan:
		return "read_loan"
	case ReadTreasury:
		return "read_treasury"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Action is one generated call. Only the fields its Kind needs are set.
type Action struct {
	Kind       Kind
	User       string
	Amount     uint64
	Collateral uint64
	Duration   uint64
	Score      uint64
	LoanID     uint64
}

// Scenario fixes the participant pool and the relative weight of each kind.
type Scenario struct {
	Name    string
	Users   []string
	Weights [numKinds]int
}

// BorrowerPool returns a scenario over n participants, dominated by reads
// and quotes as a public lending front end would be.
func BorrowerPool(prefix string, n int) Scenario {
	if n < 1 {
		n = 1
	}
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("%s-%03d", prefix, i)
	}
	return Scenario{
		Name:  "BorrowerPool",
		Users: users,
		Weights: [numKinds]int{
			Quote:           30,
			InitializeScore: 5,
			RequestLoan:     15,
			ReadScore:       20,
			ReadLoan:        20,
			ReadTreasury:    10,
		},
	}
}

// Generator draws actions from a scenario. It is not safe for concurrent use;
// give each worker its own.
type Generator struct {
	scenario Scenario
	total    int
	rnd      *rand.Rand
}

func NewGenerator(s Scenario, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	total := 0
	for _, w := range s.Weights {
		total += w
	}
	return &Generator{scenario: s, total: total, rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) Next() Action {
	a := Action{
		Kind: g.kind(),
		User: g.scenario.Users[g.rnd.Intn(len(g.scenario.Users))],
	}
	switch a.Kind {
	case Quote:
		a.Amount = g.amount()
		a.Score = lending.MinScore + uint64(g.rnd.Intn(lending.MaxScore-lending.MinScore+1))
	case RequestLoan:
		a.Amount = g.amount()
		a.Collateral = a.Amount
		a.Duration = 1 + uint64(g.rnd.Intn(lending.MaxDuration))
	case ReadLoan:
		a.LoanID = 1 + uint64(g.rnd.Intn(1000))
	}
	return a
}

func (g *Generator) kind() Kind {
	if g.total <= 0 {
		return Quote
	}
	n := g.rnd.Intn(g.total)
	for k, w := range g.scenario.Weights {
		if n < w {
			return Kind(k)
		}
		n -= w
	}
	return Quote
}

// amount is 1_000 to 1_000_000 minor units.
func (g *Generator) amount() uint64 {
	return uint64(g.rnd.Intn(1000)+1) * 1000
}

func (g *Generator) Users() []string {
	return append([]string(nil), g.scenario.Users...)
}
