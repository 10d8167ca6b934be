package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speech:recognize", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		var body recognizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "en-US", body.Config.LanguageCode)
		assert.Empty(t, body.Config.Encoding)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("RIFF")), body.Audio.Content)
		_, _ = w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"add to cart"}]},{"alternatives":[{"transcript":" pink shirt "}]}]}`))
	}))
	defer srv.Close()

	g := NewGoogle(Config{BaseURL: srv.URL, APIKey: "k"})
	text, err := g.Transcribe(context.Background(), []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "add to cart pink shirt", text)
}

func TestTranscribeNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewGoogle(Config{BaseURL: srv.URL}).Transcribe(context.Background(), []byte("x"), "audio/wav")
	assert.ErrorIs(t, err, ErrUnrecognized)

	_, err = NewGoogle(Config{BaseURL: srv.URL}).Transcribe(context.Background(), nil, "audio/wav")
	assert.ErrorIs(t, err, ErrUnrecognized)
}

func TestTranscribeServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGoogle(Config{BaseURL: srv.URL}).Transcribe(context.Background(), []byte("x"), "audio/ogg")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnrecognized))
}

func TestEncodingFor(t *testing.T) {
	assert.Equal(t, "OGG_OPUS", encodingFor("audio/ogg"))
	assert.Equal(t, "WEBM_OPUS", encodingFor("audio/webm;codecs=opus"))
	assert.Equal(t, "MP3", encodingFor("audio/mpeg"))
	assert.Equal(t, "", encodingFor("audio/wav"))
}
