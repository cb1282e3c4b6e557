package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key (anvil/hardhat account #0).
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const devAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestNewSigner_Address(t *testing.T) {
	s, err := NewSigner(devKey, 137)
	require.NoError(t, err)
	assert.Equal(t, devAddr, s.Address().Hex())
	assert.Equal(t, int64(137), s.ChainID())

	_, err = NewSigner("", 137)
	assert.Error(t, err)
	_, err = NewSigner("zz", 137)
	assert.Error(t, err)
}

func recoverSigner(t *testing.T, td apitypes.TypedData, sigHex string) common.Address {
	t.Helper()
	digest, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	sig := common.FromHex(sigHex)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(digest, sig)
	require.NoError(t, err)
	return ethcrypto.PubkeyToAddress(*pub)
}

func TestSignTypedData_Recoverable(t *testing.T) {
	s, err := NewSigner(devKey, 137)
	require.NoError(t, err)

	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712Domain,
			"Ping":         []apitypes.Type{{Name: "note", Type: "string"}},
		},
		PrimaryType: "Ping",
		Domain: apitypes.TypedDataDomain{
			Name:    "Test",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(137),
		},
		Message: apitypes.TypedDataMessage{"note": "hello"},
	}
	sig, err := s.SignTypedData(td)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 132)
	assert.Equal(t, s.Address(), recoverSigner(t, td, sig))
}

func TestSignAuth_Deterministic(t *testing.T) {
	s, err := NewSigner(devKey, 137)
	require.NoError(t, err)

	a, err := s.SignAuth(1_700_000_000, 0)
	require.NoError(t, err)
	b, err := s.SignAuth(1_700_000_000, 0)
	require.NoError(t, err)
	c, err := s.SignAuth(1_700_000_001, 0)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSignOrder(t *testing.T) {
	s, err := NewSigner(devKey, 137)
	require.NoError(t, err)

	o := Order{
		Salt:        "12345",
		Maker:       devAddr,
		Signer:      devAddr,
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount: "5000000",
		TakerAmount: "5310000",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
	}
	sig, err := s.SignOrder(o, "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	require.NoError(t, err)
	assert.Len(t, sig, 132)

	other, err := s.SignOrder(o, "0xC5d563A36AE78145C45a50134d48A1215220f80a")
	require.NoError(t, err)
	assert.NotEqual(t, sig, other, "domain must bind the verifying contract")

	o.MakerAmount = "not-a-number"
	_, err = s.SignOrder(o, "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	assert.ErrorContains(t, err, "makerAmount")
}

func TestL2HeadersAt(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret-key"))
	c := Creds{Key: "k", Secret: secret, Passphrase: "p"}

	h := c.L2HeadersAt(devAddr, "post", "/order", `{"a":1}`, 1_700_000_000)

	mac := hmac.New(sha256.New, []byte("super-secret-key"))
	mac.Write([]byte(`1700000000POST/order{"a":1}`))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, h["POLY_SIGNATURE"])
	assert.Equal(t, "1700000000", h["POLY_TIMESTAMP"])
	assert.Equal(t, devAddr, h["POLY_ADDRESS"])
	assert.Equal(t, "k", h["POLY_API_KEY"])
	assert.Equal(t, "p", h["POLY_PASSPHRASE"])
	assert.NotContains(t, h["POLY_SIGNATURE"], "+")
	assert.NotContains(t, h["POLY_SIGNATURE"], "/")
}

func TestCredsString_Redacted(t *testing.T) {
	c := Creds{Key: "abcdefgh", Secret: "s3cr3tvalue"}
	assert.NotContains(t, c.String(), "s3cr3tvalue")
	assert.Contains(t, c.String(), "abcd****")
}

func TestKeyFile(t *testing.T) {
	data, err := SealKey(devKey, "hunter2")
	require.NoError(t, err)
	assert.Contains(t, string(data), devAddr)
	assert.NotContains(t, string(data), strings.TrimPrefix(devKey, "0x"))

	key, err := OpenKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(devKey, "0x"), key)

	_, err = OpenKey(data, "wrong")
	assert.Error(t, err)

	_, err = SealKey(devKey, "")
	assert.Error(t, err)
}

func TestKeySource_Resolve(t *testing.T) {
	k, err := KeySource{Raw: devKey}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(devKey, "0x"), k)

	_, err = KeySource{}.Resolve()
	assert.ErrorIs(t, err, ErrNoKey)

	data, err := SealKey(devKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	k, err = KeySource{Path: path, Password: "pw"}.Resolve()
	require.NoError(t, err)
	assert.Equal(t, strings.TrimPrefix(devKey, "0x"), k)
}
