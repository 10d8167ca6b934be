package domain

import "context"

// CatalogItem is a single product ingested into the similarity index.
type CatalogItem struct {
	ID          string  `json:"id" yaml:"id,omitempty"`
	FileName    string  `json:"file_name" yaml:"file_name"`
	Description string  `json:"description" yaml:"description"`
	Price       float64 `json:"price" yaml:"price"`
}

// SearchResult is the read-only projection of catalog metadata returned for a query.
type SearchResult struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Score       float64 `json:"score,omitempty"`
}

// CartItem is one line of the shopping cart.
type CartItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// Conversation roles understood by the language generation oracle.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role  string `json:"role"`
	Parts string `json:"parts"`
}

// Embedder converts free text or an image into a fixed-dimension vector.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedImage(ctx context.Context, image []byte, mimeType string) ([]float64, error)
}

// VectorStore persists catalog vectors and answers nearest-neighbour queries.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, items []CatalogItem, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// Generator is the language generation oracle. The history is the context
// the oracle is seeded with; prompt is the message to answer.
type Generator interface {
	Generate(ctx context.Context, history []Turn, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// PaymentRequest asks the payment gateway for a redirect URL.
type PaymentRequest struct {
	Amount    float64 `json:"amount"`
	ProductID string  `json:"product_id"`
}

// PaymentGateway starts and verifies external payment transactions.
type PaymentGateway interface {
	RedirectURL(ctx context.Context, req PaymentRequest) (string, error)
	Verify(ctx context.Context, amount float64, productID, refID string) error
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}
