package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignKnownVector(t *testing.T) {
	// RFC 4231 test case 2
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", got)
}

func TestVerify(t *testing.T) {
	secret := "callback-secret"
	body := []byte(`{"success":true,"analysisJobId":"job-1","projectId":"p-1"}`)
	sig := Sign(secret, body)

	tests := []struct {
		name   string
		secret string
		body   []byte
		sig    string
		want   bool
	}{
		{"valid", secret, body, sig, true},
		{"valid with prefix", secret, body, Prefix + sig, true},
		{"valid uppercase hex", secret, body, strings.ToUpper(sig), true},
		{"mutated body", secret, []byte(`{"success":false,"analysisJobId":"job-1","projectId":"p-1"}`), sig, false},
		{"whitespace change", secret, []byte(`{"success": true,"analysisJobId":"job-1","projectId":"p-1"}`), sig, false},
		{"wrong secret", "other", body, sig, false},
		{"empty secret", "", body, Sign("", body), false},
		{"empty signature", secret, body, "", false},
		{"short signature", secret, body, sig[:10], false},
		{"not hex", secret, body, strings.Repeat("z", 64), false},
		{"too long", secret, body, sig + "00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.secret, tt.body, tt.sig))
		})
	}
}
