package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/internal/composer"
	"shopassist/internal/discount"
	"shopassist/internal/domain"
	"shopassist/internal/embedding"
	"shopassist/internal/embedding/hashing"
	"shopassist/internal/history"
	"shopassist/internal/intent"
	"shopassist/internal/llm"
	"shopassist/internal/notify"
	"shopassist/internal/payment"
	"shopassist/internal/vectorstore/memory"
)

type fixedEmbedder struct{ err error }

func (f fixedEmbedder) Name() string   { return "fixed" }
func (f fixedEmbedder) Dimension() int { return 2 }
func (f fixedEmbedder) EmbedText(context.Context, string) ([]float64, error) {
	return []float64{1, 0}, f.err
}
func (f fixedEmbedder) EmbedImage(context.Context, []byte, string) ([]float64, error) {
	return nil, embedding.ErrImageUnsupported
}

type fixedStore struct {
	results  []domain.SearchResult
	err      error
	clearErr error
}

func (s *fixedStore) Init(context.Context, int) error                                 { return nil }
func (s *fixedStore) Upsert(context.Context, []domain.CatalogItem, [][]float64) error { return nil }
func (s *fixedStore) Clear(context.Context) error                                     { return s.clearErr }
func (s *fixedStore) Search(context.Context, []float64, int) ([]domain.SearchResult, error) {
	return s.results, s.err
}

type stubGateway struct {
	mu       sync.Mutex
	url      string
	err      error
	verify   error
	requests []domain.PaymentRequest
}

func (g *stubGateway) RedirectURL(_ context.Context, req domain.PaymentRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return g.url, g.err
}

func (g *stubGateway) Verify(context.Context, float64, string, string) error { return g.verify }

type recordingLedger struct {
	entries []payment.Entry
	settled []string
}

func (l *recordingLedger) Record(_ context.Context, e payment.Entry) (int64, error) {
	l.entries = append(l.entries, e)
	return int64(len(l.entries)), nil
}

func (l *recordingLedger) Settle(_ context.Context, _, refID, status string) (bool, error) {
	l.settled = append(l.settled, refID+":"+status)
	return true, nil
}

var pinkShirt = domain.SearchResult{ID: "1", Filename: "shirt.jpg", Description: "pink t-shirt", Price: 100, Score: 0.9}

type fixture struct {
	a       *Assistant
	store   *fixedStore
	gateway *stubGateway
	ledger  *recordingLedger
	sub     *notify.Subscriber
	hist    *history.Store
}

func newFixture(t *testing.T, results ...domain.SearchResult) *fixture {
	t.Helper()
	store := &fixedStore{results: results}
	gw := &stubGateway{url: "https://pay.example/epay?pid=1"}
	ledger := &recordingLedger{}
	hub := notify.NewHub(16)
	hist := history.NewStore("", history.Options{})
	a := NewAssistant(Deps{
		Embedder:   fixedEmbedder{},
		Store:      store,
		Composer:   composer.New(llm.NewMock("test"), hist, nil, composer.Options{}),
		Hub:        hub,
		Gateway:    gw,
		Ledger:     ledger,
		Negotiator: discount.NewNegotiator(10, 20, 2),
		ImageDir:   t.TempDir(),
	})
	sub := hub.Register()
	t.Cleanup(func() { hub.Unregister(sub) })
	return &fixture{a: a, store: store, gateway: gw, ledger: ledger, sub: sub, hist: hist}
}

func drain(s *notify.Subscriber) []map[string]any {
	var out []map[string]any
	for {
		select {
		case msg := <-s.C:
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestAddToCartScenario(t *testing.T) {
	f := newFixture(t, pinkShirt)
	resp := f.a.Query(context.Background(), "add to cart")

	assert.Equal(t, intent.ResultAddedToCart, resp.Action)
	require.NotNil(t, resp.AddToCart)
	assert.Equal(t, "1", resp.AddToCart.ID)
	assert.Equal(t, []domain.CartItem{{ID: "1", Description: "pink t-shirt", Price: 100, Quantity: 1}}, f.a.Cart())
	assert.Contains(t, resp.Response, "You've added the following item to your cart: pink t-shirt.")

	events := drain(f.sub)
	require.Len(t, events, 1)
	assert.Equal(t, "add", events[0]["action"])
	item := events[0]["item"].(map[string]any)
	assert.Equal(t, "pink t-shirt", item["description"])
	assert.EqualValues(t, 100, item["price"])
	assert.EqualValues(t, 1, item["quantity"])
}

func TestAddTwiceMergesQuantity(t *testing.T) {
	f := newFixture(t, pinkShirt)
	f.a.Query(context.Background(), "add to cart")
	f.a.Query(context.Background(), "please ADD TO CART again")

	cart := f.a.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 2, cart[0].Quantity)
}

func TestCartActionsNeedResults(t *testing.T) {
	f := newFixture(t)
	resp := f.a.Query(context.Background(), "add to cart")
	assert.Equal(t, intent.ResultNoAction, resp.Action)
	assert.Nil(t, resp.AddToCart)
	assert.Empty(t, resp.Images)
	assert.NotNil(t, resp.Images)
	assert.Equal(t, composer.OutOfContext, resp.Response)
	assert.Empty(t, f.a.Cart())
	assert.Empty(t, drain(f.sub))
}

func TestDeleteAndUpdateFromQuery(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	f.a.Query(ctx, "add to cart")

	resp := f.a.Query(ctx, "update cart to 4")
	assert.Equal(t, intent.ResultUpdatedCart, resp.Action)
	assert.Equal(t, 4, f.a.Cart()[0].Quantity)

	resp = f.a.Query(ctx, "delete from cart")
	assert.Equal(t, intent.ResultDeletedFromCart, resp.Action)
	require.NotNil(t, resp.DeleteFromCart)
	assert.Empty(t, f.a.Cart())

	actions := []string{}
	for _, e := range drain(f.sub) {
		actions = append(actions, e["action"].(string))
	}
	assert.Equal(t, []string{"add", "edit", "remove"}, actions)
}

func TestDiscountSequence(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	f.a.Query(ctx, "add to cart")
	drain(f.sub)

	var got []int
	for i := 0; i < 3; i++ {
		resp := f.a.Query(ctx, "provide me discount")
		assert.Equal(t, intent.ResultDiscountApplied, resp.Action)
		require.NotNil(t, resp.DiscountApplied)
		got = append(got, f.a.Discount().Current)
	}
	assert.Equal(t, []int{12, 14, 16}, got)

	events := drain(f.sub)
	require.Len(t, events, 3)
	assert.EqualValues(t, 16, events[2]["discount"])
	assert.InDelta(t, 84.0, events[2]["final_amount"].(float64), 1e-9)
}

func TestCheckoutEmptyCartDoesNothing(t *testing.T) {
	f := newFixture(t, pinkShirt)
	resp := f.a.Query(context.Background(), "proceed to check out")

	assert.Equal(t, intent.ResultNoAction, resp.Action)
	assert.Nil(t, resp.PaymentURL)
	assert.Empty(t, f.gateway.requests)
	assert.Empty(t, f.ledger.entries)
	assert.Empty(t, drain(f.sub))
}

func TestCheckoutAppliesDiscountAndClearsCart(t *testing.T) {
	second := domain.SearchResult{ID: "2", Description: "blue jeans", Price: 50, Score: 0.5}
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	f.a.Query(ctx, "add to cart")
	f.store.results = []domain.SearchResult{second}
	f.a.Query(ctx, "add to cart")
	f.a.Query(ctx, "provide me discount")
	drain(f.sub)

	resp := f.a.Query(ctx, "proceed to check out")
	assert.Equal(t, intent.ResultCheckout, resp.Action)
	require.NotNil(t, resp.PaymentURL)
	assert.Equal(t, f.gateway.url, *resp.PaymentURL)
	assert.Empty(t, f.a.Cart())

	require.Len(t, f.gateway.requests, 1)
	assert.InDelta(t, 150*0.88, f.gateway.requests[0].Amount, 1e-9)
	assert.Equal(t, "1, 2", f.gateway.requests[0].ProductID)

	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, 12, f.ledger.entries[0].Discount)

	events := drain(f.sub)
	require.Len(t, events, 1)
	assert.Equal(t, "checkout", events[0]["action"])
	assert.Equal(t, f.gateway.url, events[0]["url"])
}

func TestCheckoutWithoutDiscountAttemptsUsesFullTotal(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	f.a.Query(ctx, "add to cart")
	f.a.Query(ctx, "proceed to check out")
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, 100.0, f.gateway.requests[0].Amount)
}

func TestCheckoutPaymentFailureKeepsCart(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	f.a.Query(ctx, "add to cart")
	drain(f.sub)
	f.gateway.url = ""

	resp := f.a.Query(ctx, "proceed to check out")
	assert.Equal(t, intent.ResultPaymentFailed, resp.Action)
	assert.Nil(t, resp.PaymentURL)
	assert.Len(t, f.a.Cart(), 1)
	assert.Empty(t, drain(f.sub))
	assert.Empty(t, f.ledger.entries)
}

func TestSearchFailureDegradesToNoMatch(t *testing.T) {
	f := newFixture(t, pinkShirt)
	f.store.err = errors.New("index down")
	resp := f.a.Query(context.Background(), "add to cart")
	assert.Equal(t, intent.ResultNoAction, resp.Action)
	assert.Equal(t, composer.OutOfContext, resp.Response)
}

func TestDirectCartOperations(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	item := domain.CartItem{ID: "9", Description: "wool hat", Price: 20, Quantity: 2}

	resp := f.a.AddItem(ctx, item)
	assert.Equal(t, "Item added to cart", resp.Message)
	assert.Equal(t, intent.ResultNoAction, resp.AIResponse.Action)

	f.a.EditItem(ctx, domain.CartItem{ID: "9", Description: "Wool Hat", Price: 20, Quantity: 5})
	assert.Equal(t, 5, f.a.Cart()[0].Quantity)

	resp = f.a.RemoveItem(ctx, "wool hat")
	assert.Equal(t, "Item removed from cart", resp.Message)
	assert.Empty(t, f.a.Cart())

	actions := []string{}
	for _, e := range drain(f.sub) {
		actions = append(actions, e["action"].(string))
	}
	assert.Equal(t, []string{"add", "edit", "remove"}, actions)
}

func TestPaymentAppliesDiscountOnlyAfterAttempt(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()

	q, err := f.a.Payment(ctx, domain.PaymentRequest{Amount: 200, ProductID: "1"})
	require.NoError(t, err)
	assert.Equal(t, 200.0, q.FinalAmount)
	assert.Zero(t, q.DiscountAmount)

	f.a.Query(ctx, "provide me discount")
	q, err = f.a.Payment(ctx, domain.PaymentRequest{Amount: 200, ProductID: "1"})
	require.NoError(t, err)
	assert.InDelta(t, 176.0, q.FinalAmount, 1e-9)
	assert.InDelta(t, 24.0, q.DiscountAmount, 1e-9)
	assert.Equal(t, f.gateway.url, q.URL)
}

func TestVerifySettlesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.a.Verify(ctx, 10, "1", "ok"))

	f.gateway.verify = payment.ErrVerificationFailed
	assert.ErrorIs(t, f.a.Verify(ctx, 10, "1", "bad"), payment.ErrVerificationFailed)

	f.gateway.verify = errors.New("unreachable")
	assert.Error(t, f.a.Verify(ctx, 10, "1", "down"))

	assert.Equal(t, []string{"ok:verified", "bad:failed"}, f.ledger.settled)
}

func TestIngestWithHashingAndMemoryStore(t *testing.T) {
	dir := t.TempDir()
	hist := history.NewStore("", history.Options{})
	a := NewAssistant(Deps{
		Embedder: hashing.NewEmbedder(512),
		Store:    memory.NewStorage(),
		Composer: composer.New(llm.NewMock("test"), hist, nil, composer.Options{}),
		ImageDir: dir,
	})
	ctx := context.Background()
	items, err := a.Ingest(ctx, []Upload{
		{FileName: "../shirt.jpg", Data: []byte("img1"), Description: "pink cotton t-shirt", Price: 100},
		{FileName: "pants.jpg", Data: []byte("img2"), Price: 0},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "shirt.jpg", items[0].FileName)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, DefaultDescription, items[1].Description)

	data, err := os.ReadFile(filepath.Join(dir, "shirt.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "img1", string(data))

	resp := a.Query(ctx, "add to cart the pink shirt")
	assert.Equal(t, intent.ResultAddedToCart, resp.Action)
	require.NotEmpty(t, resp.Images)
	assert.Equal(t, items[0].ID, resp.Images[0].ID)
	assert.Equal(t, "pink cotton t-shirt", a.Cart()[0].Description)
}

func TestResetCatalogDropsIndexAndLexicalCache(t *testing.T) {
	store := memory.NewStorage()
	a := NewAssistant(Deps{
		Embedder: hashing.NewEmbedder(512),
		Store:    store,
		Composer: composer.New(llm.NewMock("test"), history.NewStore("", history.Options{}), nil, composer.Options{}),
		ImageDir: t.TempDir(),
	})
	ctx := context.Background()
	_, err := a.Ingest(ctx, []Upload{{FileName: "shirt.jpg", Data: []byte("img"), Description: "pink t-shirt", Price: 100}})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	require.NoError(t, a.ResetCatalog(ctx))
	assert.Equal(t, 0, store.Len())
	assert.Empty(t, a.Search(ctx, "pink t-shirt"))
	assert.Empty(t, a.lexicalSearch("pink t-shirt", 3))

	resp := a.Query(ctx, "add to cart")
	assert.Equal(t, intent.ResultNoAction, resp.Action)
	assert.Empty(t, a.Cart())
}

func TestResetCatalogWrapsStoreError(t *testing.T) {
	f := newFixture(t)
	f.store.clearErr = errors.New("qdrant down")
	err := f.a.ResetCatalog(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant down")
}

func TestResetDiscountReturnsToBaseline(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	f.a.Query(ctx, "provide me discount")
	f.a.Query(ctx, "provide me discount")
	require.Equal(t, 14, f.a.Discount().Current)

	st := f.a.ResetDiscount()
	assert.Equal(t, discount.State{Current: 10, Max: 20, Attempts: 0}, st)

	f.a.Query(ctx, "provide me discount")
	assert.Equal(t, 12, f.a.Discount().Current)
}

func TestIngestRejectsEmpty(t *testing.T) {
	f := newFixture(t)
	_, err := f.a.Ingest(context.Background(), nil)
	assert.Error(t, err)
}

func TestConcurrentQueriesKeepCartConsistent(t *testing.T) {
	f := newFixture(t, pinkShirt)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.a.Query(ctx, "add to cart")
		}()
	}
	wg.Wait()
	cart := f.a.Cart()
	require.Len(t, cart, 1)
	assert.Equal(t, 20, cart[0].Quantity)
}

func TestLexicalFallbackOnZeroScores(t *testing.T) {
	f := newFixture(t)
	f.a.catalog = []domain.CatalogItem{
		{ID: "a", FileName: "hat.jpg", Description: "wool hat", Price: 20},
		{ID: "b", FileName: "belt.jpg", Description: "leather belt", Price: 30},
	}
	f.store.results = []domain.SearchResult{{ID: "b", Description: "leather belt"}}

	res := f.a.Search(context.Background(), "a warm hat")
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)

	// no lexical overlap keeps the index results
	res = f.a.Search(context.Background(), "socks")
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].ID)
}
