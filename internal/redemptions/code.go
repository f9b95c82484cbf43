package redemptions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// NewCode returns a short code in the form LOYAL-XXXX-XXXX that staff read
// back at the counter.
func NewCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate redemption code: %w", err)
	}
	h := strings.ToUpper(hex.EncodeToString(b))
	return fmt.Sprintf("LOYAL-%s-%s", h[:4], h[4:]), nil
}
