package negotiation

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Token derives the credential a UE presents for its MAC address.
func Token(secret, mac string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(mac))
	return hex.EncodeToString(h.Sum(nil))
}

func VerifyToken(secret, mac, token string) bool {
	want := Token(secret, mac)
	return hmac.Equal([]byte(want), []byte(token))
}
