package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alovak/csob-gateway/gateway"
	"github.com/alovak/csob-gateway/gateway/gatewaytest"
	"github.com/alovak/csob-gateway/gateway/models"
	"github.com/alovak/csob-gateway/internal/security"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func TestNormalizeItemName(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"", "Payment"},
		{"   ", "Payment"},
		{"blue  shirt", "blue shirt"},
		{"  Nákup:\tvasobchod.cz  ", "Nákup: vasobchod.cz"},
		{"a very very long cart item name", "a very very long car"}, // 20 runes
	}
	for _, c := range cases {
		got := normalizeItemName(c.in)
		if got != c.out {
			t.Fatalf("normalizeItemName(%q) = %q want %q", c.in, got, c.out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := parseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)

	lvl, err = parseLevel(" WARN ")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, lvl)

	_, err = parseLevel("loud")
	require.Error(t, err)
}

// writeConfig writes key files and a config pointing at bank.
func writeConfig(t *testing.T, bank *gatewaytest.Bank) string {
	dir := t.TempDir()
	keys := bank.Keys()
	write := func(name string, b []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, b, 0o600))
		return p
	}
	priv := write("merchant.key", keys.Private)
	pub := write("merchant.pub", keys.Public)
	bankPub := write("bank.pub", keys.Bank)

	return write("csobgw.yaml", []byte(`
log_level: error
gateway:
  merchant_id: `+gatewaytest.MerchantID+`
  private_key: `+priv+`
  public_key: `+pub+`
  bank_public_key: `+bankPub+`
  url: `+bank.Server.URL+`
  version: v1.8
demo:
  http_addr: 127.0.0.1:0
`))
}

func run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	err := execute(&out, args)
	return out.String(), err
}

// fakeHSM makes setup use signer as if it came from an HSM and counts
// how often the session is closed.
func fakeHSM(t *testing.T, signer gateway.Signer) *int {
	closed := 0
	prev := openSigner
	openSigner = func(hsmConfig, gateway.Algorithm) (gateway.Signer, func(), error) {
		return signer, func() { closed++ }, nil
	}
	t.Cleanup(func() { openSigner = prev })
	return &closed
}

func TestLoadConfig(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	path := writeConfig(t, bank)

	t.Setenv("CSOB_HSM_LIBRARY", "/usr/lib/softhsm/libsofthsm2.so")
	t.Setenv("CSOB_HSM_SLOT", "3")
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, gatewaytest.MerchantID, cfg.Gateway.MerchantID)
	require.Equal(t, "127.0.0.1:0", cfg.Demo.HTTPAddr)
	require.Equal(t, 10, cfg.Demo.OrderNoLength)
	require.Equal(t, "error", cfg.LogLevel)
	require.Equal(t, "/usr/lib/softhsm/libsofthsm2.so", cfg.HSM.Library)
	require.Equal(t, uint(3), cfg.HSM.Slot)
}

func TestCommands(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	path := writeConfig(t, bank)

	out, err := run(t, "--config", path, "echo")
	require.NoError(t, err)
	require.Contains(t, out, `"signature"`)

	out, err = run(t, "--config", path, "init", "--amount", "1500", "--return-url", "https://shop.example/return", "--order-no", "5547")
	require.NoError(t, err)
	var created struct {
		PayID      string `json:"payId"`
		OrderNo    string `json:"orderNo"`
		ProcessURL string `json:"processUrl"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Equal(t, "5547", created.OrderNo)
	require.True(t, strings.HasPrefix(created.ProcessURL, bank.Server.URL+"/api/v1.8/payment/process/"+gatewaytest.MerchantID+"/"+created.PayID+"/"))

	out, err = run(t, "--config", path, "status", created.PayID)
	require.NoError(t, err)
	var status struct {
		PaymentStatus int `json:"paymentStatus"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Equal(t, int(models.StatusCreated), status.PaymentStatus)

	out, err = run(t, "--config", path, "process-url", created.PayID)
	require.NoError(t, err)
	require.Contains(t, out, "/payment/process/")

	_, err = run(t, "--config", path, "reverse", created.PayID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "PAYMENT_NOT_IN_VALID_STATE")

	bank.SetStatus(created.PayID, models.StatusWaitingForSettle)
	_, err = run(t, "--config", path, "refund", created.PayID, "--amount", "500")
	require.NoError(t, err)
	st, _ := bank.Status(created.PayID)
	require.Equal(t, models.StatusWaitingForRefund, st)
}

func TestHSMIsClosed(t *testing.T) {
	bank := gatewaytest.NewBank(t, "v1.8")
	path := writeConfig(t, bank)
	keys := bank.Keys()

	sha256Signer, err := security.NewRSASignerFromPEM(keys.Private, security.SHA256)
	require.NoError(t, err)

	t.Run("after a successful command", func(t *testing.T) {
		closed := fakeHSM(t, sha256Signer)
		_, err := run(t, "--config", path, "echo")
		require.NoError(t, err)
		require.Equal(t, 1, *closed)
	})

	t.Run("after a failed command", func(t *testing.T) {
		closed := fakeHSM(t, sha256Signer)
		_, err := run(t, "--config", path, "status", "unknown")
		require.Error(t, err)
		require.Contains(t, err.Error(), "PAYMENT_NOT_FOUND")
		require.Equal(t, 1, *closed)
	})

	t.Run("when the client cannot be built", func(t *testing.T) {
		sha1Signer, err := security.NewRSASignerFromPEM(keys.Private, security.SHA1)
		require.NoError(t, err)
		closed := fakeHSM(t, sha1Signer)

		_, err = run(t, "--config", path, "echo")
		var cerr *gateway.ConfigurationError
		require.ErrorAs(t, err, &cerr)
		require.Equal(t, 1, *closed)
	})
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "keygen", "--out-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "merchant.key")

	info, err := os.Stat(filepath.Join(dir, "merchant.key"))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = run(t, "keygen", "--out-dir", dir, "--bits", "1024")
	require.Error(t, err)
}
