package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"shopassist/internal/cart"
	"shopassist/internal/composer"
	"shopassist/internal/discount"
	"shopassist/internal/domain"
	"shopassist/internal/embedding"
	"shopassist/internal/intent"
	"shopassist/internal/notify"
	"shopassist/internal/obs"
	"shopassist/internal/payment"
)

// DefaultDescription is stored for ingested items without a description.
const DefaultDescription = "No description available."

// Ledger records payment attempts.
type Ledger interface {
	Record(ctx context.Context, e payment.Entry) (int64, error)
	Settle(ctx context.Context, productIDs, refID, status string) (bool, error)
}

// Deps wires the assistant to its collaborators. Ledger is optional.
type Deps struct {
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Composer   *composer.Composer
	Hub        *notify.Hub
	Gateway    domain.PaymentGateway
	Ledger     Ledger
	Cart       *cart.Cart
	Negotiator *discount.Negotiator
	ImageDir   string
	TopK       int
}

// Assistant owns the session state and runs the query-to-action pipeline.
type Assistant struct {
	embedder   domain.Embedder
	store      domain.VectorStore
	composer   *composer.Composer
	hub        *notify.Hub
	gateway    domain.PaymentGateway
	ledger     Ledger
	cart       *cart.Cart
	negotiator *discount.Negotiator
	imageDir   string
	topK       int

	// dispatchMu serializes classification, mutation and broadcast. It is
	// never held across embedding, index or generation calls.
	dispatchMu sync.Mutex

	catalogMu sync.RWMutex
	catalog   []domain.CatalogItem
}

func NewAssistant(d Deps) *Assistant {
	if d.Cart == nil {
		d.Cart = cart.New()
	}
	if d.Negotiator == nil {
		d.Negotiator = discount.NewNegotiator(10, 20, 2)
	}
	if d.Hub == nil {
		d.Hub = notify.NewHub(0)
	}
	if d.TopK <= 0 {
		d.TopK = 3
	}
	return &Assistant{
		embedder:   d.Embedder,
		store:      d.Store,
		composer:   d.Composer,
		hub:        d.Hub,
		gateway:    d.Gateway,
		ledger:     d.Ledger,
		cart:       d.Cart,
		negotiator: d.Negotiator,
		imageDir:   d.ImageDir,
		topK:       d.TopK,
	}
}

// Outcome is what the dispatcher did for one query.
type Outcome struct {
	Action      intent.Action
	Result      intent.Result
	Target      *domain.SearchResult
	Discount    int
	FinalAmount float64
	PaymentURL  string
}

// QueryResponse is the reply to a text query.
type QueryResponse struct {
	Response        string                `json:"response"`
	Images          []domain.SearchResult `json:"images"`
	AddToCart       *domain.SearchResult  `json:"addToCart"`
	DeleteFromCart  *domain.SearchResult  `json:"deleteFromCart"`
	UpdateCart      *domain.SearchResult  `json:"updateCart"`
	PaymentURL      *string               `json:"paymentUrl"`
	DiscountApplied *float64              `json:"discountApplied"`
	Action          intent.Result         `json:"action"`
}

// Query runs the full pipeline for text and never fails: collaborator errors
// degrade to empty results or a canned reply.
func (a *Assistant) Query(ctx context.Context, text string) QueryResponse {
	results := a.Search(ctx, text)
	out := a.Dispatch(ctx, text, results)
	reply := a.composer.Compose(ctx, composer.Request{
		Query:       text,
		Result:      out.Result,
		Results:     results,
		Discount:    out.Discount,
		FinalAmount: out.FinalAmount,
		HasDiscount: out.Result == intent.ResultDiscountApplied,
	})
	resp := QueryResponse{Response: reply, Images: results, Action: out.Result}
	if resp.Images == nil {
		resp.Images = []domain.SearchResult{}
	}
	switch out.Result {
	case intent.ResultAddedToCart:
		resp.AddToCart = out.Target
	case intent.ResultDeletedFromCart:
		resp.DeleteFromCart = out.Target
	case intent.ResultUpdatedCart:
		resp.UpdateCart = out.Target
	case intent.ResultCheckout:
		u := out.PaymentURL
		resp.PaymentURL = &u
	case intent.ResultDiscountApplied:
		f := out.FinalAmount
		resp.DiscountApplied = &f
	}
	obs.Logger.Info("query_handled", "action", out.Action.String(), "result", string(out.Result), "matches", len(results))
	return resp
}

// Search resolves text against the similarity index. Failures are logged and
// reported as no match.
func (a *Assistant) Search(ctx context.Context, text string) []domain.SearchResult {
	vec, err := a.embedder.EmbedText(ctx, text)
	if err != nil {
		obs.Logger.Warn("embed_query_failed", "error", err)
		return nil
	}
	if embedding.IsZero(vec) {
		return a.lexicalSearch(text, a.topK)
	}
	res, err := a.store.Search(ctx, vec, a.topK)
	if err != nil {
		obs.Logger.Warn("index_search_failed", "error", err)
		return nil
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		if lex := a.lexicalSearch(text, a.topK); len(lex) > 0 {
			return lex
		}
	}
	return res
}

// Dispatch classifies text and applies the resulting action to the session.
// Exactly one notification is broadcast for every action that changes state.
func (a *Assistant) Dispatch(ctx context.Context, text string, results []domain.SearchResult) Outcome {
	a.dispatchMu.Lock()
	defer a.dispatchMu.Unlock()

	action := intent.Classify(text)
	out := Outcome{Action: action, Result: intent.ResultNoAction}
	if action.NeedsResults() && len(results) == 0 {
		return out
	}
	switch action {
	case intent.AddToCart:
		target := results[0]
		item := cartItem(target, 1)
		a.cart.Add(item)
		a.hub.Broadcast(notify.Added(item))
		out.Result, out.Target = intent.ResultAddedToCart, &target
	case intent.DeleteFromCart:
		target := results[0]
		a.cart.Remove(target.Description)
		a.hub.Broadcast(notify.Removed(target.Description))
		out.Result, out.Target = intent.ResultDeletedFromCart, &target
	case intent.UpdateCart:
		target := results[0]
		item := cartItem(target, intent.ParseQuantity(text))
		a.cart.Edit(item)
		a.hub.Broadcast(notify.Edited(item))
		out.Result, out.Target = intent.ResultUpdatedCart, &target
	case intent.Checkout:
		a.checkout(ctx, &out)
	case intent.RequestDiscount:
		d, final := a.negotiator.Request(a.cart.Total())
		a.hub.Broadcast(notify.Discounted(d, final))
		out.Result, out.Discount, out.FinalAmount = intent.ResultDiscountApplied, d, final
	}
	return out
}

// checkout must run under dispatchMu.
func (a *Assistant) checkout(ctx context.Context, out *Outcome) {
	if a.cart.Len() == 0 {
		return
	}
	total := a.cart.Total()
	pct := a.negotiator.Effective()
	if pct > 0 {
		total = discount.Apply(total, pct)
	}
	ids := strings.Join(a.cart.IDs(), ", ")
	url, err := a.redirect(ctx, domain.PaymentRequest{Amount: total, ProductID: ids})
	if err != nil {
		obs.Logger.Warn("checkout_payment_failed", "product_ids", ids, "error", err)
		out.Result = intent.ResultPaymentFailed
		return
	}
	a.hub.Broadcast(notify.CheckedOut(url))
	a.cart.Clear()
	a.record(ctx, payment.Entry{ProductIDs: ids, Amount: total, Discount: pct, URL: url})
	out.Result, out.PaymentURL, out.FinalAmount = intent.ResultCheckout, url, total
}

func (a *Assistant) redirect(ctx context.Context, req domain.PaymentRequest) (string, error) {
	if a.gateway == nil {
		return "", payment.ErrNoRedirect
	}
	url, err := a.gateway.RedirectURL(ctx, req)
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", payment.ErrNoRedirect
	}
	return url, nil
}

func (a *Assistant) record(ctx context.Context, e payment.Entry) {
	if a.ledger == nil {
		return
	}
	if _, err := a.ledger.Record(ctx, e); err != nil {
		obs.Logger.Warn("ledger_record_failed", "error", err)
	}
}

// CartResponse is returned by the direct cart operations.
type CartResponse struct {
	Message    string        `json:"message"`
	AIResponse QueryResponse `json:"ai_response"`
}

// AddItem merges item into the cart, then re-runs the pipeline with a
// synthesized description of the change.
func (a *Assistant) AddItem(ctx context.Context, item domain.CartItem) CartResponse {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	a.dispatchMu.Lock()
	a.cart.Add(item)
	a.hub.Broadcast(notify.Added(item))
	a.dispatchMu.Unlock()
	resp := a.Query(ctx, fmt.Sprintf("Added %s to cart", item.Description))
	return CartResponse{Message: "Item added to cart", AIResponse: resp}
}

func (a *Assistant) RemoveItem(ctx context.Context, description string) CartResponse {
	a.dispatchMu.Lock()
	a.cart.Remove(description)
	a.hub.Broadcast(notify.Removed(description))
	a.dispatchMu.Unlock()
	resp := a.Query(ctx, fmt.Sprintf("Removed %s from cart", description))
	return CartResponse{Message: "Item removed from cart", AIResponse: resp}
}

func (a *Assistant) EditItem(ctx context.Context, item domain.CartItem) CartResponse {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	a.dispatchMu.Lock()
	a.cart.Edit(item)
	a.hub.Broadcast(notify.Edited(item))
	a.dispatchMu.Unlock()
	resp := a.Query(ctx, fmt.Sprintf("Updated %s in cart", item.Description))
	return CartResponse{Message: "Item updated in cart", AIResponse: resp}
}

// Cart returns the current cart lines.
func (a *Assistant) Cart() []domain.CartItem { return a.cart.Snapshot() }

// Discount returns the negotiation state.
func (a *Assistant) Discount() discount.State { return a.negotiator.State() }

// ResetDiscount returns bargaining to its baseline and reports the new state.
func (a *Assistant) ResetDiscount() discount.State {
	a.dispatchMu.Lock()
	defer a.dispatchMu.Unlock()
	a.negotiator.Reset()
	return a.negotiator.State()
}

// PaymentQuote is the gateway redirect plus the discount it reflects.
type PaymentQuote struct {
	URL            string  `json:"url"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalAmount    float64 `json:"final_amount"`
}

// Payment starts a payment for req, applying the negotiated discount once at
// least one bargaining attempt was made.
func (a *Assistant) Payment(ctx context.Context, req domain.PaymentRequest) (PaymentQuote, error) {
	pct := a.negotiator.Effective()
	final := discount.Apply(req.Amount, pct)
	url, err := a.redirect(ctx, domain.PaymentRequest{Amount: final, ProductID: req.ProductID})
	if err != nil {
		return PaymentQuote{}, err
	}
	a.record(ctx, payment.Entry{ProductIDs: req.ProductID, Amount: final, Discount: pct, URL: url})
	return PaymentQuote{URL: url, DiscountAmount: req.Amount - final, FinalAmount: final}, nil
}

// Verify confirms a completed payment with the gateway.
func (a *Assistant) Verify(ctx context.Context, amount float64, productID, refID string) error {
	if a.gateway == nil {
		return errors.New("payment gateway not configured")
	}
	err := a.gateway.Verify(ctx, amount, productID, refID)
	status := payment.StatusVerified
	switch {
	case errors.Is(err, payment.ErrVerificationFailed):
		status = payment.StatusFailed
	case err != nil:
		return err
	}
	if a.ledger != nil {
		if _, lerr := a.ledger.Settle(ctx, productID, refID, status); lerr != nil {
			obs.Logger.Warn("ledger_settle_failed", "error", lerr)
		}
	}
	return err
}

// Upload is one catalog image to ingest.
type Upload struct {
	FileName    string
	Data        []byte
	MimeType    string
	Description string
	Price       float64
}

// Ingest stores the images, embeds them and upserts them into the index.
// Embedders that cannot read images embed the description instead.
func (a *Assistant) Ingest(ctx context.Context, uploads []Upload) ([]domain.CatalogItem, error) {
	if len(uploads) == 0 {
		return nil, errors.New("no files to ingest")
	}
	if a.imageDir != "" {
		if err := os.MkdirAll(a.imageDir, 0o755); err != nil {
			return nil, fmt.Errorf("create image dir: %w", err)
		}
	}
	items := make([]domain.CatalogItem, 0, len(uploads))
	vectors := make([][]float64, 0, len(uploads))
	for _, up := range uploads {
		name := filepath.Base(up.FileName)
		if name == "." || name == string(filepath.Separator) {
			return nil, fmt.Errorf("invalid file name %q", up.FileName)
		}
		if a.imageDir != "" {
			if err := os.WriteFile(filepath.Join(a.imageDir, name), up.Data, 0o644); err != nil {
				return nil, fmt.Errorf("save %s: %w", name, err)
			}
		}
		desc := strings.TrimSpace(up.Description)
		if desc == "" {
			desc = DefaultDescription
		}
		item := domain.CatalogItem{ID: uuid.NewString(), FileName: name, Description: desc, Price: up.Price}
		vec, err := a.embedder.EmbedImage(ctx, up.Data, up.MimeType)
		if errors.Is(err, embedding.ErrImageUnsupported) {
			vec, err = a.embedder.EmbedText(ctx, desc)
		}
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", name, err)
		}
		items = append(items, item)
		vectors = append(vectors, vec)
	}
	dim := a.embedder.Dimension()
	if dim == 0 {
		dim = len(vectors[0])
	}
	if err := a.store.Init(ctx, dim); err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if err := a.store.Upsert(ctx, items, vectors); err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	a.catalogMu.Lock()
	a.catalog = append(a.catalog, items...)
	a.catalogMu.Unlock()
	for _, it := range items {
		obs.Logger.Info("item_ingested", "id", it.ID, "file_name", it.FileName, "price", it.Price)
	}
	return items, nil
}

// ResetCatalog drops every indexed item so the catalog can be re-ingested.
func (a *Assistant) ResetCatalog(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	a.catalogMu.Lock()
	n := len(a.catalog)
	a.catalog = nil
	a.catalogMu.Unlock()
	obs.Logger.Info("catalog_reset", "items", n)
	return nil
}

func cartItem(r domain.SearchResult, qty int) domain.CartItem {
	return domain.CartItem{ID: r.ID, Description: r.Description, Price: r.Price, Quantity: qty}
}
