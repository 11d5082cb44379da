package reporting

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/dompet-app/dompet/internal/apperr"
	"github.com/dompet-app/dompet/internal/httpx"
	"github.com/dompet-app/dompet/internal/ledger"
	"github.com/dompet-app/dompet/internal/logging"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

type fixture struct {
	store   *ledger.InMemoryStore
	engine  *ledger.Engine
	service *Service
	ani     ledger.Account
	budi    ledger.Account
	cici    ledger.Account
}

// newFixture commits, one hour apart starting 2025-03-01 22:00 WIB:
// topup ani 100000, topup cici 5000, transfer ani->budi 40000,
// transfer cici->ani 2000, topup budi 700.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := time.Date(2025, 3, 1, 22, 0, 0, 0, jakarta)
	tick := -1
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}

	ids, err := ledger.NewIDGenerator(2)
	require.NoError(t, err)
	store := ledger.NewInMemory()
	engine := ledger.NewEngine(store, ids, ledger.WithClock(clock))
	f := &fixture{store: store, engine: engine, service: NewService(store, jakarta)}

	ctx := context.Background()
	create := func(name, number string) ledger.Account {
		a, err := store.CreateAccount(ctx, ledger.Account{FullName: name, AccountNumber: number})
		require.NoError(t, err)
		return a
	}
	f.ani = create("Ani", "1234567890")
	f.budi = create("Budi", "1234567891")
	f.cici = create("Cici", "1234567892")

	_, err = engine.TopUp(ctx, f.ani.ID, 100_000)
	require.NoError(t, err)
	_, err = engine.TopUp(ctx, f.cici.ID, 5_000)
	require.NoError(t, err)
	_, err = engine.Transfer(ctx, f.ani.ID, f.budi.ID, 40_000)
	require.NoError(t, err)
	_, err = engine.Transfer(ctx, f.cici.ID, f.ani.ID, 2_000)
	require.NoError(t, err)
	_, err = engine.TopUp(ctx, f.budi.ID, 700)
	require.NoError(t, err)
	return f
}

func TestBalanceHistoryResolvesPerAccountBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	history, err := f.service.BalanceHistory(ctx, f.ani.ID, Range{}, false)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, []int64{100_000, 60_000, 62_000}, []int64{history[0].BalanceAfter, history[1].BalanceAfter, history[2].BalanceAfter})
	require.Nil(t, history[0].FromUser)
	require.Equal(t, "Budi", history[1].ToUser.FullName)
	require.Equal(t, "1234567892", history[2].FromUser.Rekening)

	budi, err := f.service.BalanceHistory(ctx, f.budi.ID, Range{}, true)
	require.NoError(t, err)
	require.Len(t, budi, 2)
	require.Equal(t, int64(40_700), budi[0].BalanceAfter, "newest first")
	require.Equal(t, int64(40_000), budi[1].BalanceAfter)

	_, err = f.service.BalanceHistory(ctx, 99, Range{}, false)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBalanceHistoryKeepsDeletedAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.DeleteAccount(ctx, f.cici.ID, time.Now()))

	history, err := f.service.BalanceHistory(ctx, f.cici.ID, Range{}, false)
	require.NoError(t, err)
	require.Len(t, history, 2)

	transfers, err := f.service.TransferHistory(ctx, Filter{AccountID: f.ani.ID})
	require.NoError(t, err)
	require.Equal(t, "Cici", transfers[1].FromUser.FullName)
}

func TestBalanceHistoryByCalendarDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 22:00 and 23:00 WIB fall on March 1st, the rest on March 2nd.
	day, err := ParseDay("date", "2025-03-01", jakarta)
	require.NoError(t, err)
	history, err := f.service.BalanceHistory(ctx, f.ani.ID, day, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "TOPUP", history[0].Type)

	day, err = ParseDay("date", "2025-03-02", jakarta)
	require.NoError(t, err)
	history, err = f.service.BalanceHistory(ctx, f.ani.ID, day, false)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestTopUpAndTransferHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	topups, err := f.service.TopUpHistory(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, topups, 3)
	require.Equal(t, "Ani", topups[0].User.FullName)
	require.Equal(t, int64(40_700), topups[2].BalanceAfter)

	topups, err = f.service.TopUpHistory(ctx, Filter{AccountID: f.budi.ID})
	require.NoError(t, err)
	require.Len(t, topups, 1)

	r, err := ParseRange("startDate", "2025-03-02", "endDate", "2025-03-02", jakarta)
	require.NoError(t, err)
	transfers, err := f.service.TransferHistory(ctx, Filter{Range: r})
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	require.Equal(t, int64(60_000), transfers[0].FromBalanceAfter)
	require.Equal(t, int64(40_000), transfers[0].ToBalanceAfter)

	transfers, err = f.service.TransferHistory(ctx, Filter{AccountID: f.budi.ID})
	require.NoError(t, err)
	require.Len(t, transfers, 1, "budi is only the recipient of one transfer")
}

func TestReconcileBalancedLedger(t *testing.T) {
	f := newFixture(t)
	report, err := f.service.Reconcile(context.Background())
	require.NoError(t, err)
	require.True(t, report.Balanced)
	require.Equal(t, 3, report.Accounts)
	require.Equal(t, 5, report.Entries)
	require.Equal(t, int64(105_700), report.TotalTopUps)
	require.Equal(t, report.TotalTopUps, report.TotalBalances)
	require.Empty(t, report.Mismatches)
}

type tamperedStore struct {
	*ledger.InMemoryStore
	accountID int64
}

func (s tamperedStore) Accounts(ctx context.Context, includeDeleted bool) ([]ledger.Account, error) {
	accounts, err := s.InMemoryStore.Accounts(ctx, includeDeleted)
	for i := range accounts {
		if accounts[i].ID == s.accountID {
			accounts[i].Balance += 1
		}
	}
	return accounts, err
}

func TestReconcileReportsMismatch(t *testing.T) {
	f := newFixture(t)
	svc := NewService(tamperedStore{InMemoryStore: f.store, accountID: f.budi.ID}, jakarta)

	report, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.False(t, report.Balanced)
	require.Len(t, report.Mismatches, 1)
	require.Equal(t, f.budi.ID, report.Mismatches[0].AccountID)
	require.Equal(t, int64(40_701), report.Mismatches[0].StoredBalance)
	require.Equal(t, int64(40_700), report.Mismatches[0].ReplayedBalance)
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("startDate", "2025-03-01", "endDate", "2025-03-01", time.UTC)
	require.NoError(t, err)
	require.True(t, r.From.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, r.To.Equal(time.Date(2025, 3, 1, 23, 59, 59, 999_999_999, time.UTC)))

	r, err = ParseRange("startDate", "2025-03-01T10:00:00Z", "endDate", "", time.UTC)
	require.NoError(t, err)
	require.True(t, r.From.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
	require.True(t, r.To.IsZero())

	_, err = ParseRange("startDate", "2025-03-02", "endDate", "2025-03-01", time.UTC)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeInvalidDateRange, appErr.Code)

	_, err = ParseRange("startDate", "01/03/2025", "endDate", "", time.UTC)
	appErr, ok = apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.CodeInvalidDate, appErr.Code)
	require.Equal(t, "startDate", appErr.Field)
}

func newTestApp(t *testing.T, f *fixture) *fiber.App {
	t.Helper()
	h := NewHandler(f.service)
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logging.Discard())})
	app.Get("/transactions/balance-history", h.BalanceHistory)
	app.Get("/transactions/topups", h.TopUps)
	app.Get("/transactions/transfers", h.Transfers)
	app.Get("/transactions/by-date-range", h.ByDateRange)
	app.Get("/transactions/reconciliation", h.Reconciliation)
	return app
}

func get(t *testing.T, app *fiber.App, path string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out), string(raw))
	return resp.StatusCode
}

func TestHandlerRoutes(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f)

	var history []Transaction
	require.Equal(t, 200, get(t, app, "/transactions/balance-history?userId=1&order=DESC", &history))
	require.Len(t, history, 3)
	require.Equal(t, int64(62_000), history[0].BalanceAfter)

	var topups []TopUp
	require.Equal(t, 200, get(t, app, "/transactions/topups?userId=3", &topups))
	require.Len(t, topups, 1)
	require.Equal(t, "Cici", topups[0].User.FullName)

	var transfers []Transfer
	require.Equal(t, 200, get(t, app, "/transactions/transfers?startDate=2025-03-02&endDate=2025-03-02", &transfers))
	require.Len(t, transfers, 2)

	var ranged []Transaction
	require.Equal(t, 200, get(t, app, "/transactions/by-date-range?startDate=2025-03-01&endDate=2025-03-01", &ranged))
	require.Len(t, ranged, 2)

	var report Reconciliation
	require.Equal(t, 200, get(t, app, "/transactions/reconciliation", &report))
	require.True(t, report.Balanced)
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(t, f)

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/transactions/balance-history", 400, apperr.CodeInvalidRequest},
		{"/transactions/balance-history?userId=abc", 400, apperr.CodeInvalidRequest},
		{"/transactions/balance-history?userId=42", 404, apperr.CodeAccountNotFound},
		{"/transactions/balance-history?userId=1&date=yesterday", 400, apperr.CodeInvalidDate},
		{"/transactions/balance-history?userId=1&order=sideways", 400, apperr.CodeInvalidRequest},
		{"/transactions/topups?startDate=2025-03-05&endDate=2025-03-01", 400, apperr.CodeInvalidDateRange},
		{"/transactions/by-date-range?startDate=2025-03-01", 400, apperr.CodeInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			var body httpx.ErrorBody
			require.Equal(t, tc.status, get(t, app, tc.path, &body))
			require.Equal(t, tc.code, body.Code)
		})
	}
}
