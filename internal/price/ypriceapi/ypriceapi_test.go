package ypriceapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGetPriceParsesSuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		price := 1.23
		json.NewEncoder(w).Encode(getPriceResponse{Price: &price, Address: r.URL.Path})
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	p, ok, err := c.GetPrice(t.Context(), 1, common.HexToAddress("0x1111111111111111111111111111111111111111"), 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(decimal.NewFromFloat(1.23)), "got %s", p)
}

func TestGetPriceTreatsNullPriceAsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(getPriceResponse{Price: nil})
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	_, ok, err := c.GetPrice(t.Context(), 1, common.HexToAddress("0x2222222222222222222222222222222222222222"), 100)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetPriceTreatsNon200AsNotFoundNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	_, ok, err := c.GetPrice(t.Context(), 1, common.HexToAddress("0x3333333333333333333333333333333333333333"), 100)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetPriceSendsSignerAndSignature(t *testing.T) {
	var gotSigner, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSigner = r.URL.Query().Get("signer")
		gotSig = r.URL.Query().Get("signature")
		price := 1.0
		json.NewEncoder(w).Encode(getPriceResponse{Price: &price})
	}))
	defer srv.Close()

	c, err := New(Config{URL: srv.URL, Signer: "0xsigner", Signature: "0xsig"})
	require.NoError(t, err)

	_, ok, err := c.GetPrice(t.Context(), 1, common.HexToAddress("0x4444444444444444444444444444444444444444"), 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0xsigner", gotSigner)
	require.Equal(t, "0xsig", gotSig)
}

func TestNewRejectsPartialSignerPair(t *testing.T) {
	_, err := New(Config{URL: "http://example.invalid", Signer: "0xsigner"})
	require.Error(t, err)
}
