package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shopassist/internal/domain"
	"shopassist/internal/history"
	"shopassist/internal/notify"
	"shopassist/internal/obs"
	"shopassist/internal/payment"
	"shopassist/internal/service"
	"shopassist/internal/speech"
	"shopassist/internal/voice"
)

// App holds the HTTP handlers' collaborators.
type App struct {
	Assistant      *service.Assistant
	History        *history.Store
	Hub            *notify.Hub
	Transcriber    domain.Transcriber
	Voice          *voice.Lane
	Limiter        *RateLimiter
	ImageDir       string
	CORSOrigins    []string
	MaxUploadBytes int64
	started        time.Time
}

func NewApp(a App) *App {
	if a.Voice == nil {
		a.Voice = voice.NewLane()
	}
	if a.MaxUploadBytes <= 0 {
		a.MaxUploadBytes = 32 << 20
	}
	a.started = time.Now()
	return &a
}

type queryRequest struct {
	QueryText string `json:"query_text"`
}

type removeRequest struct {
	Description string `json:"description"`
}

type verifyRequest struct {
	Amount    float64 `json:"amount"`
	ProductID string  `json:"product_id"`
	RefID     string  `json:"ref_id"`
}

func (a *App) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the AI Voice Assistance API"})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(a.started).Seconds()),
		"observers":  a.Hub.Len(),
		"cart_items": len(a.Assistant.Cart()),
	})
}

func (a *App) ingestHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "files are required")
		return
	}
	descriptions := r.MultipartForm.Value["descriptions"]
	prices := r.MultipartForm.Value["prices"]
	uploads := make([]service.Upload, 0, len(files))
	for i, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			WriteJSONError(w, http.StatusBadRequest, "invalid_file", err.Error())
			return
		}
		up := service.Upload{FileName: fh.Filename, Data: data, MimeType: fh.Header.Get("Content-Type")}
		if i < len(descriptions) {
			up.Description = descriptions[i]
		}
		if i < len(prices) {
			p, err := strconv.ParseFloat(strings.TrimSpace(prices[i]), 64)
			if err != nil || p < 0 {
				WriteJSONError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid price %q", prices[i]))
				return
			}
			up.Price = p
		}
		uploads = append(uploads, up)
	}
	items, err := a.Assistant.Ingest(r.Context(), uploads)
	if err != nil {
		obs.Logger.Error("ingest_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		WriteJSONError(w, http.StatusInternalServerError, "ingest_failed", "Failed to ingest images")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Images ingested successfully", "images": items})
}

func (a *App) resetCatalogHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.Assistant.ResetCatalog(r.Context()); err != nil {
		obs.Logger.Error("catalog_reset_failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		WriteJSONError(w, http.StatusInternalServerError, "reset_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Catalog cleared"})
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (a *App) queryHandler(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.QueryText) == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "query_text is required")
		return
	}
	writeJSON(w, http.StatusOK, a.Assistant.Query(r.Context(), req.QueryText))
}

func (a *App) voiceQueryHandler(w http.ResponseWriter, r *http.Request) {
	done, err := a.Voice.TryBegin()
	if err != nil {
		WriteJSONError(w, http.StatusConflict, "voice_busy", err.Error())
		return
	}
	defer done()
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	file, fh, err := r.FormFile("file")
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	audio, err := io.ReadAll(file)
	_ = file.Close()
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_file", err.Error())
		return
	}
	if a.Transcriber == nil {
		WriteJSONError(w, http.StatusServiceUnavailable, "speech_unavailable", "no transcriber configured")
		return
	}
	text, err := a.Transcriber.Transcribe(r.Context(), audio, fh.Header.Get("Content-Type"))
	if errors.Is(err, speech.ErrUnrecognized) {
		WriteJSONError(w, http.StatusBadRequest, "unrecognized_speech", "Could not understand the audio.")
		return
	}
	if err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "speech_service_error",
			"Could not request results from the speech recognition service; "+err.Error())
		return
	}
	resp := a.Assistant.Query(r.Context(), text)
	writeJSON(w, http.StatusOK, map[string]string{"response": resp.Response, "query_text": text})
}

type voiceState struct {
	Speaking   bool `json:"speaking"`
	Processing bool `json:"processing"`
	CanListen  bool `json:"can_listen"`
}

func (a *App) voiceState() voiceState {
	return voiceState{Speaking: a.Voice.Speaking(), Processing: a.Voice.Processing(), CanListen: a.Voice.CanListen()}
}

func (a *App) voiceStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.voiceState())
}

// speakingHandler lets a client that plays replies aloud mark playback.
func (a *App) speakingHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speaking bool `json:"speaking"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	a.Voice.SetSpeaking(req.Speaking)
	writeJSON(w, http.StatusOK, a.voiceState())
}

func (a *App) getCartHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cart": a.Assistant.Cart()})
}

func (a *App) addCartHandler(w http.ResponseWriter, r *http.Request) {
	item, ok := decodeCartItem(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Assistant.AddItem(r.Context(), item))
}

func (a *App) removeCartHandler(w http.ResponseWriter, r *http.Request) {
	var req removeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "description is required")
		return
	}
	writeJSON(w, http.StatusOK, a.Assistant.RemoveItem(r.Context(), req.Description))
}

func (a *App) editCartHandler(w http.ResponseWriter, r *http.Request) {
	item, ok := decodeCartItem(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Assistant.EditItem(r.Context(), item))
}

func (a *App) paymentHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount < 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "amount must be >= 0")
		return
	}
	quote, err := a.Assistant.Payment(r.Context(), req)
	if err != nil {
		WriteJSONError(w, http.StatusBadGateway, "payment_failed", err.Error())
		return
	}
	obs.Logger.Info("payment_started", "product_id", req.ProductID, "final_amount", quote.FinalAmount)
	writeJSON(w, http.StatusOK, quote)
}

// verifyHandler accepts a JSON body or amount/product_id/ref_id query parameters.
func (a *App) verifyHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	q := r.URL.Query()
	if q.Has("ref_id") {
		amt, err := strconv.ParseFloat(q.Get("amount"), 64)
		if err != nil {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "invalid amount")
			return
		}
		req = verifyRequest{Amount: amt, ProductID: q.Get("product_id"), RefID: q.Get("ref_id")}
	} else if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefID == "" || req.ProductID == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "product_id and ref_id are required")
		return
	}
	err := a.Assistant.Verify(r.Context(), req.Amount, req.ProductID, req.RefID)
	switch {
	case errors.Is(err, payment.ErrVerificationFailed):
		WriteJSONError(w, http.StatusBadRequest, "verification_failed", "Payment verification failed")
	case err != nil:
		WriteJSONError(w, http.StatusInternalServerError, "verification_error", err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Payment verified successfully"})
	}
}

func (a *App) discountHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Assistant.Discount())
}

func (a *App) resetDiscountHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Assistant.ResetDiscount())
}

func (a *App) historyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.History.Turns())
}

func (a *App) saveHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.History.Save(); err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "history_save_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "History saved", "turns": a.History.Len()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func decodeCartItem(w http.ResponseWriter, r *http.Request) (domain.CartItem, bool) {
	var item domain.CartItem
	if !decodeJSON(w, r, &item) {
		return item, false
	}
	if strings.TrimSpace(item.Description) == "" {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "description is required")
		return item, false
	}
	if item.Price < 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "price must be >= 0")
		return item, false
	}
	return item, true
}
