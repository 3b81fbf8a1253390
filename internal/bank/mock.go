package bank

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"time"

	"financeflow/internal/core"

	"github.com/google/uuid"
)

// mockNamespace scopes the SHA-1 external ids of generated transactions.
var mockNamespace = uuid.MustParse("6f1c2a4e-8b0d-4c3e-9a51-3d7e2b9f0c11")

type merchantTable struct {
	category  core.Category
	merchants []string
	amounts   []float64
}

var mockMerchants = []merchantTable{
	{core.Food, []string{"Carrefour", "E.Leclerc", "Intermarche", "Restaurant du Coin"}, []float64{25, 50, 100, 35, 45}},
	{core.Transport, []string{"RATP", "SNCF", "Shell", "Essence Station"}, []float64{15, 90, 60, 55}},
	{core.Utilities, []string{"EDF", "Orange", "Aqua Plus"}, []float64{120, 25, 40}},
	{core.Entertainment, []string{"Netflix", "Spotify", "Cinéma", "Jeux Vidéo"}, []float64{12, 10, 15, 60}},
	{core.Shopping, []string{"Zara", "H&M", "Amazon", "Décathlon"}, []float64{45, 35, 50, 25}},
	{core.Healthcare, []string{"Pharmacie", "Docteur", "Dentiste"}, []float64{25, 50, 150}},
}

const (
	mockDateLayout = "2006-01-02T15:04:05"
	mockSalary     = 2500.0
)

// Mock generates plausible expense feeds. Output depends only on the seed,
// the account id and the calendar day, so fetching the same window twice
// returns the same records and external ids.
type Mock struct {
	seed     int64
	now      func() time.Time
	accounts []RemoteAccount
}

func NewMock(seed int64) *Mock {
	return &Mock{
		seed: seed,
		now:  time.Now,
		accounts: []RemoteAccount{
			{ID: "mock_account_001", Name: "Compte Courant", Bank: "Banque XYZ", Balance: 2500.50, Currency: core.DefaultCurrency},
			{ID: "mock_account_002", Name: "Compte Épargne", Bank: "Banque XYZ", Balance: 5000.00, Currency: core.DefaultCurrency},
		},
	}
}

func (m *Mock) Accounts(context.Context) ([]RemoteAccount, error) {
	out := make([]RemoteAccount, len(m.accounts))
	copy(out, m.accounts)
	return out, nil
}

// Balance returns the listed balance of a known mock account and 0 otherwise.
func (m *Mock) Balance(_ context.Context, accountExternalID string) (float64, error) {
	for _, a := range m.accounts {
		if a.ID == accountExternalID {
			return a.Balance, nil
		}
	}
	return 0, nil
}

// FetchTransactions returns the records of the last daysBack days plus
// today, newest first.
func (m *Mock) FetchTransactions(ctx context.Context, accountExternalID string, daysBack int) ([]core.RawRecord, error) {
	if daysBack < 0 {
		daysBack = 0
	}
	now := m.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var records []core.RawRecord
	for d := 0; d <= daysBack; d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := today.AddDate(0, 0, -d)
		records = append(records, m.day(accountExternalID, day, now)...)
	}
	if salary, ok := m.salary(accountExternalID, today, now); ok && !today.AddDate(0, 0, -daysBack).After(salaryDate(today)) {
		records = append(records, salary)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Date > records[j].Date })
	return records, nil
}

func (m *Mock) day(accountID string, day, now time.Time) []core.RawRecord {
	key := day.Format("2006-01-02")
	r := m.rng(accountID, key)

	n := r.IntN(3) // 0..2 per day
	out := make([]core.RawRecord, 0, n)
	for i := range n {
		table := mockMerchants[r.IntN(len(mockMerchants))]
		merchant := table.merchants[r.IntN(len(table.merchants))]
		amount := table.amounts[r.IntN(len(table.amounts))]
		at := day.Add(time.Duration(8+r.IntN(14))*time.Hour + time.Duration(r.IntN(60))*time.Minute)
		if at.After(now) {
			continue
		}
		out = append(out, core.RawRecord{
			ExternalID:  m.externalID(accountID, key, i),
			Description: merchant,
			Merchant:    merchant,
			Amount:      &amount,
			Date:        at.Format(mockDateLayout),
			Category:    string(table.category),
			Type:        string(core.Expense),
		})
	}
	return out
}

// salary adds the monthly pay slip for roughly a third of (account, month)
// pairs.
func (m *Mock) salary(accountID string, today, now time.Time) (core.RawRecord, bool) {
	month := today.Format("2006-01")
	if m.rng(accountID, "salary:"+month).Float64() <= 0.7 {
		return core.RawRecord{}, false
	}
	at := salaryDate(today)
	if at.After(now) {
		return core.RawRecord{}, false
	}
	amount := mockSalary
	return core.RawRecord{
		ExternalID:  uuid.NewSHA1(mockNamespace, []byte(fmt.Sprintf("%d|%s|salary|%s", m.seed, accountID, month))).String(),
		Description: "Salaire Mensuel",
		Merchant:    "Employeur",
		Amount:      &amount,
		Date:        at.Format(mockDateLayout),
		Category:    string(core.Salary),
		Type:        string(core.Income),
	}, true
}

func salaryDate(today time.Time) time.Time {
	return time.Date(today.Year(), today.Month(), 1, 9, 0, 0, 0, time.UTC)
}

func (m *Mock) rng(accountID, key string) *rand.Rand {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%s|%s", m.seed, accountID, key)
	s := h.Sum64()
	return rand.New(rand.NewPCG(s, s>>1|1))
}

func (m *Mock) externalID(accountID, day string, i int) string {
	return uuid.NewSHA1(mockNamespace, []byte(fmt.Sprintf("%d|%s|%s|%d", m.seed, accountID, day, i))).String()
}
