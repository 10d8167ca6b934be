// Package composer turns a dispatched action into the assistant's reply.
package composer

import (
	"context"
	"fmt"
	"strings"

	"shopassist/internal/domain"
	"shopassist/internal/history"
	"shopassist/internal/intent"
	"shopassist/internal/obs"
)

// Fixed replies.
const (
	OutOfContext = "It seems like your query is out of context. Could you please clarify or ask something else?"
	Apology      = "Sorry, I encountered an error while trying to respond to your request."
	FollowUp     = "Is there anything specific you need help with today?"
)

const genericOpening = "how can i assist you today"

// Preamble is the persona and instruction block placed before every prompt.
const Preamble = `You are an AI assistant of a retail shop, a shop known for its wonderful product. Your role is to interact with customers and help them with their inquiries.

Guidelines for interaction:
- Start the conversation by greeting the customer and asking how you can assist them.
- If a customer asks about you, provide a brief introduction about cloth store
- If a customer asks about the item or product, provide a brief overview of popular items or products.
- If a customer gives their order, confirm it by repeating back to them.
- Provide concise, relevant responses that relate directly to the customer's query.
- If you don't have an answer, apologize and suggest that they speak to a human assistant for further help.
- Always be polite and end the conversation with a friendly farewell.
- Do not generate additional dialogue beyond what is necessary to address the customer's current inquiry. Focus on responding directly to what the customer has said.

Don't reply randomly, just reply based on the data within the database and collection.`

// Request is everything the composer needs to phrase one reply.
type Request struct {
	Query       string
	Result      intent.Result
	Results     []domain.SearchResult
	Discount    int
	FinalAmount float64
	HasDiscount bool
}

// Options tune the composer.
type Options struct {
	MaxSummarySentences int
	Autosave            bool
}

// Composer owns prompt construction and history bookkeeping around the
// generation oracle.
type Composer struct {
	gen        domain.Generator
	history    *history.Store
	summarizer domain.Summarizer
	opts       Options
}

func New(gen domain.Generator, hist *history.Store, sum domain.Summarizer, opts Options) *Composer {
	if opts.MaxSummarySentences <= 0 {
		opts.MaxSummarySentences = 3
	}
	return &Composer{gen: gen, history: hist, summarizer: sum, opts: opts}
}

// Compose builds the prompt for req, records the exchange and returns the
// cleaned reply. It never fails: oracle errors yield Apology.
func (c *Composer) Compose(ctx context.Context, req Request) string {
	if len(req.Results) == 0 {
		c.history.Append(domain.Turn{Role: domain.RoleModel, Parts: OutOfContext})
		c.autosave()
		return OutOfContext
	}
	full := Preamble + "\n\n" + c.Template(req)
	c.history.Append(
		domain.Turn{Role: domain.RoleUser, Parts: req.Query},
		domain.Turn{Role: domain.RoleModel, Parts: full},
	)
	reply, err := c.gen.Generate(ctx, c.history.Context(), full)
	if err != nil {
		obs.Logger.Error("generate_response_failed", "result", string(req.Result), "error", err)
		c.autosave()
		return Apology
	}
	reply = Clean(reply)
	c.history.Append(domain.Turn{Role: domain.RoleModel, Parts: reply})
	c.autosave()
	if strings.Contains(strings.ToLower(reply), genericOpening) {
		return FollowUp
	}
	return reply
}

// Template returns the action-specific prompt for req.
func (c *Composer) Template(req Request) string {
	switch req.Result {
	case intent.ResultAddedToCart:
		return fmt.Sprintf("You've added the following item to your cart: %s. Would you like to continue shopping or proceed to checkout?", combined(req.Results))
	case intent.ResultDeletedFromCart:
		return fmt.Sprintf("The item '%s' has been removed from your cart. Is there anything else you'd like to do?", req.Results[0].Description)
	case intent.ResultDiscountApplied:
		if !req.HasDiscount {
			return "A discount has been applied."
		}
		return fmt.Sprintf("A discount of %d%% has been applied. The total is now %.2f.", req.Discount, req.FinalAmount)
	default:
		return fmt.Sprintf("Based on your request, I found the following items: %s. How can I assist you further?", c.summary(req.Results))
	}
}

// Clean strips emphasis markup and surrounding whitespace.
func Clean(reply string) string {
	return strings.TrimSpace(strings.ReplaceAll(reply, "*", ""))
}

func (c *Composer) summary(results []domain.SearchResult) string {
	text := combined(results)
	if c.summarizer == nil {
		return text
	}
	sentences := make([]string, 0, len(results))
	for _, r := range results {
		d := strings.TrimSpace(r.Description)
		if d == "" {
			continue
		}
		if !strings.ContainsAny(d[len(d)-1:], ".!?") {
			d += "."
		}
		sentences = append(sentences, d)
	}
	out, err := c.summarizer.Summarize(strings.Join(sentences, " "), c.opts.MaxSummarySentences)
	if err != nil || out == "" {
		return text
	}
	return strings.TrimRight(out, ".")
}

func (c *Composer) autosave() {
	if !c.opts.Autosave {
		return
	}
	if err := c.history.Save(); err != nil {
		obs.Logger.Warn("history_autosave_failed", "error", err)
	}
}

func combined(results []domain.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Description
	}
	return strings.Join(parts, " ")
}
