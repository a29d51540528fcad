// Package memory holds account metadata and market prices in process. The
// catalog can be seeded from a YAML file.
package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Seed is the file layout read by LoadSeed.
type Seed struct {
	Users      []models.User     `yaml:"users"`
	Accounts   []models.Account  `yaml:"accounts"`
	Securities []models.Security `yaml:"securities"`
}

// Catalog implements both AccountDirectory and MarketData.
type Catalog struct {
	mu         sync.RWMutex
	users      map[string]models.User
	accounts   map[string]models.Account
	securities map[string]models.Security
}

func NewCatalog() *Catalog {
	return &Catalog{
		users:      make(map[string]models.User),
		accounts:   make(map[string]models.Account),
		securities: make(map[string]models.Security),
	}
}

// LoadSeed reads a YAML seed file into a new catalog.
func LoadSeed(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	c := NewCatalog()
	if err := c.Apply(seed); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply adds everything in seed. Accounts must reference a known user.
func (c *Catalog) Apply(seed Seed) error {
	for _, u := range seed.Users {
		c.PutUser(u)
	}
	for _, a := range seed.Accounts {
		if err := c.PutAccount(a); err != nil {
			return err
		}
	}
	for _, s := range seed.Securities {
		c.PutSecurity(s)
	}
	return nil
}

func (c *Catalog) PutUser(u models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[u.ID] = u
}

func (c *Catalog) PutAccount(a models.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.users[a.UserID]; !ok {
		return fmt.Errorf("account %s: unknown user %q", a.ID, a.UserID)
	}
	c.accounts[a.ID] = a
	return nil
}

func (c *Catalog) PutSecurity(s models.Security) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.securities[s.ID] = s
}

// SetPrice updates the current price of a known security.
func (c *Catalog) SetPrice(securityID string, price decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.securities[securityID]
	if !ok {
		return models.Errorf(models.ErrUnknownSecurity, "no security %q", securityID)
	}
	s.Price = price
	c.securities[securityID] = s
	return nil
}

func (c *Catalog) Account(_ context.Context, accountID string) (models.Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.accounts[accountID]
	if !ok {
		return models.Account{}, models.Errorf(models.ErrUnknownAccount, "no account %q", accountID)
	}
	return a, nil
}

func (c *Catalog) User(_ context.Context, userID string) (models.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[userID]
	if !ok {
		return models.User{}, models.Errorf(models.ErrUnknownAccount, "no user %q", userID)
	}
	return u, nil
}

// Users returns every user ordered by id.
func (c *Catalog) Users(_ context.Context) ([]models.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	users := make([]models.User, 0, len(c.users))
	for _, u := range c.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b models.User) int { return strings.Compare(a.ID, b.ID) })
	return users, nil
}

// AccountsOf returns the accounts of a user ordered by id.
func (c *Catalog) AccountsOf(_ context.Context, userID string) ([]models.Account, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var accounts []models.Account
	for _, a := range c.accounts {
		if a.UserID == userID {
			accounts = append(accounts, a)
		}
	}
	slices.SortFunc(accounts, func(a, b models.Account) int { return strings.Compare(a.ID, b.ID) })
	return accounts, nil
}

func (c *Catalog) Security(_ context.Context, securityID string) (models.Security, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.securities[securityID]
	if !ok {
		return models.Security{}, models.Errorf(models.ErrUnknownSecurity, "no security %q", securityID)
	}
	return s, nil
}

var (
	_ interfaces.AccountDirectory = (*Catalog)(nil)
	_ interfaces.MarketData       = (*Catalog)(nil)
)
