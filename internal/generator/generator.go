package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/domain"
	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/service"
)

// Dataset contains the generated users and connections.
type Dataset struct {
	Users       []service.UserInput       `json:"users"`
	Connections []service.ConnectionInput `json:"connections"`
}

// Generator produces a seeded small-world social graph: a ring lattice where every user
// knows Degree neighbours, with a fraction of ties rewired to random users.
type Generator struct {
	cfg           Config
	rand          *rand.Rand
	nameFragments nameFragments
	pools         attributePools
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.NumUsers <= 0 {
		cfg.NumUsers = def.NumUsers
	}
	if cfg.Degree <= 0 {
		cfg.Degree = def.Degree
	}
	if cfg.Degree >= cfg.NumUsers {
		cfg.Degree = cfg.NumUsers - 1
	}
	if cfg.RewireChance < 0 {
		cfg.RewireChance = 0
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = def.ActivityWindow
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	cfg.Now = cfg.Now.UTC().Truncate(time.Second)

	return &Generator{
		cfg:           cfg,
		rand:          rand.New(rand.NewSource(cfg.Seed)),
		nameFragments: defaultNameFragments(),
	}
}

// Generate synthesises users and connections. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	n := g.cfg.NumUsers
	users := make([]service.UserInput, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		createdAt := g.cfg.Now.Add(-time.Duration(g.rand.Intn(730*24)) * time.Hour)
		users[i] = service.UserInput{
			ID:       userID(i),
			Name:     g.randomFullName(),
			Headline: g.randomHeadline(),
			Attributes: map[string]string{
				"city":    g.maybeShared(&g.pools.cities, 0.7, g.randomCity),
				"company": g.maybeShared(&g.pools.companies, 0.5, g.randomCompany),
			},
			CreatedAt: &createdAt,
		}
	}
	if n < 2 {
		return Dataset{Users: users}, nil
	}

	seen := make(map[[2]int]struct{}, n*g.cfg.Degree)
	conns := make([]service.ConnectionInput, 0, n*g.cfg.Degree/2+1)
	half := max(1, g.cfg.Degree/2)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		for step := 1; step <= half; step++ {
			j := (i + step) % n
			if g.rand.Float64() < g.cfg.RewireChance {
				j = g.rand.Intn(n)
			}
			if j == i {
				continue
			}
			pair := [2]int{min(i, j), max(i, j)}
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			conns = append(conns, g.connection(i, j))
		}
	}

	return Dataset{Users: users, Connections: conns}, nil
}

func (g *Generator) connection(from, to int) service.ConnectionInput {
	kind := domain.ConnectionDirect
	if g.rand.Float64() < g.cfg.InferredChance {
		kind = domain.ConnectionInferred
	}
	mutual := g.rand.Float64() >= g.cfg.OneWayChance

	// Skewed towards weak ties: most acquaintances are loose, a few are close.
	strength := math.Round((0.05+0.95*math.Pow(g.rand.Float64(), 1.5))*1000) / 1000

	in := service.ConnectionInput{
		SourceUserID: userID(from),
		TargetUserID: userID(to),
		Strength:     strength,
		Type:         kind,
		Mutual:       &mutual,
	}
	if window := int64(g.cfg.ActivityWindow / time.Minute); window > 0 && g.rand.Float64() < 0.9 {
		last := g.cfg.Now.Add(-time.Duration(g.rand.Int63n(window)) * time.Minute)
		in.LastActiveAt = &last
	}
	return in
}

func userID(i int) string {
	return fmt.Sprintf("USR-%06d", i+1)
}

type attributePools struct {
	cities    []string
	companies []string
}

func (g *Generator) maybeShared(pool *[]string, chance float64, newValue func() string) string {
	if len(*pool) > 0 && g.rand.Float64() < chance {
		return (*pool)[g.rand.Intn(len(*pool))]
	}
	val := newValue()
	*pool = append(*pool, val)
	return val
}

func (g *Generator) pick(options []string) string {
	return options[g.rand.Intn(len(options))]
}

func (g *Generator) randomFullName() string {
	return g.pick(g.nameFragments.first) + " " + g.pick(g.nameFragments.last)
}

func (g *Generator) randomHeadline() string {
	return g.pick(g.nameFragments.roles) + " at " + g.randomCompany()
}

func (g *Generator) randomCity() string {
	return g.pick(g.nameFragments.cities)
}

func (g *Generator) randomCompany() string {
	return g.pick(g.nameFragments.companyStems) + " " + g.pick(g.nameFragments.companySuffix)
}

type nameFragments struct {
	first         []string
	last          []string
	roles         []string
	companyStems  []string
	companySuffix []string
	cities        []string
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:         []string{"Jane", "John", "Alex", "Priya", "Liu", "Maria", "Omar", "Sofia", "Noah", "Emma", "Arjun", "Mia", "Ava", "Ethan", "Zara"},
		last:          []string{"Doe", "Smith", "Chen", "Patel", "Garcia", "Khan", "Kim", "Sharma", "Nguyen", "Silva", "Brown", "Lee"},
		roles:         []string{"Founder", "Engineer", "Designer", "Product Manager", "Recruiter", "Investor", "Analyst"},
		companyStems:  []string{"Northwind", "Bluefin", "Kestrel", "Lumen", "Orbit", "Cedar", "Quanta", "Harbor"},
		companySuffix: []string{"Labs", "Systems", "Ventures", "Studio", "Works"},
		cities:        []string{"Bengaluru", "Pune", "Mumbai", "Delhi", "Hyderabad", "San Francisco", "London", "Berlin", "Singapore"},
	}
}
